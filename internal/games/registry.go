// Package games maps game names to their rule sets.
package games

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchelldurbincs/turnsim/internal/games/gatherer"
	"github.com/mitchelldurbincs/turnsim/internal/games/lucky"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

var ErrUnknownGame = errors.New("unknown game")

var registry = map[string]func() sim.Game{
	"lucky":    func() sim.Game { return lucky.New() },
	"gatherer": func() sim.Game { return gatherer.New() },
}

// New returns the game registered under name, case-insensitively.
func New(name string) (sim.Game, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, name)
	}
	return ctor(), nil
}

// Names lists the registered game names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
