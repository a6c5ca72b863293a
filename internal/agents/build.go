// Package agents provides the concrete policies that can be attached to an
// environment.
package agents

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

var ErrUnknownAgent = errors.New("unknown agent")

type buildOptions struct {
	in      io.Reader
	out     io.Writer
	logger  zerolog.Logger
	scanner *bufio.Scanner
}

// Option configures agents created by Build.
type Option func(*buildOptions)

// WithInput sets where console agents read from.
func WithInput(r io.Reader) Option {
	return func(o *buildOptions) { o.in = r }
}

// WithOutput sets where console agents prompt.
func WithOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.out = w }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

var builders = map[string]func(o buildOptions) sim.Agent{
	"random":  func(buildOptions) sim.Agent { return NewRandom() },
	"client":  func(buildOptions) sim.Agent { return NewClient() },
	"console": func(o buildOptions) sim.Agent { return NewConsole(o.scanner, o.out, o.logger) },
}

func newBuildOptions(opts []Option) buildOptions {
	o := buildOptions{in: os.Stdin, out: os.Stdout, logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	o.scanner = bufio.NewScanner(o.in)
	return o
}

func build(name string, o buildOptions) (sim.Agent, error) {
	b, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return b(o), nil
}

// Build creates a fresh agent by name.
func Build(name string, opts ...Option) (sim.Agent, error) {
	return build(name, newBuildOptions(opts))
}

// BuildAll creates one agent per name, in order. Console agents share input.
func BuildAll(names []string, opts ...Option) ([]sim.Agent, error) {
	o := newBuildOptions(opts)
	out := make([]sim.Agent, 0, len(names))
	for _, name := range names {
		a, err := build(name, o)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Names lists the buildable agent names.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
