package play

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mitchelldurbincs/turnsim/internal/games"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

// Replay prints every state of a stored game in order.
func Replay(ctx context.Context, store *sqlite.Store, id string, out io.Writer) error {
	rec, records, err := store.LoadGame(ctx, id)
	if err != nil {
		return err
	}
	game, err := games.New(rec.Game)
	if err != nil {
		return err
	}
	history, err := sim.DecodeHistory(game, records)
	if err != nil {
		return fmt.Errorf("decode history of %s: %w", id, err)
	}

	fmt.Fprintf(out, "\nGame: %s (%s)", rec.ID, game.Name())
	fmt.Fprintf(out, "\nAgents: %s", strings.Join(rec.Agents, ", "))
	fmt.Fprintf(out, "\nRandom seed: %d\n", rec.Seed)

	for i, ev := range history {
		header := "INITIAL STATE"
		if !ev.IsInitial() {
			header = fmt.Sprintf("ACTION %d", i)
		}
		if ev.State.IsTerminal() {
			header = "GAME OVER"
		}
		fmt.Fprintf(out, "\n\n====== %s ======\n\n%s\n", header, ev.State.DisplayString())
		if !ev.IsInitial() {
			fmt.Fprintf(out, "\nAction: %s  Rewards: %v\n", ev.Action, ev.Rewards)
		}
	}
	return nil
}

// List prints the most recent stored games, newest first.
func List(ctx context.Context, store *sqlite.Store, limit int, out io.Writer) error {
	recs, err := store.ListGames(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGAME\tAGENTS\tACTIONS\tDONE\tCREATED")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
			rec.ID, rec.Game, strings.Join(rec.Agents, ","), rec.ActionNumber, rec.Terminal,
			rec.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
