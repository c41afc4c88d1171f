package ratings

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/touge-service-manager-go/pkg/cmd/cmdutil"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

var (
	limit            int
	local            bool
	provisionalRaces int
)

func NewRatingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratings",
		Short: "commands for player ratings",
	}
	cmd.PersistentFlags().BoolVar(&local,
		"local",
		false,
		"use the local sqlite database")
	cmd.AddCommand(newTopCmd())
	return cmd
}

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "shows the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cmdutil.SetupLogger(); err != nil {
				return err
			}
			store, err := cmdutil.OpenStore(cmd.Context(), local)
			if err != nil {
				return err
			}
			defer store.Close()
			list, err := store.TopPlayers(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderTop(list, provisionalRaces))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of players to show")
	cmd.Flags().IntVar(&provisionalRaces,
		"provisional-races",
		rating.DefaultParams().ProvisionalThreshold,
		"players with fewer matches are marked provisional")
	return cmd
}

func renderTop(list []rating.Record, provisionalRaces int) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Player", "ID", "Rating", "Races", ""})
	for i, r := range list {
		mark := ""
		if r.RacesCompleted < provisionalRaces {
			mark = "provisional"
		}
		t.AppendRow(table.Row{i + 1, r.Name, r.PlayerID, r.Rating, r.RacesCompleted, mark})
	}
	t.SetStyle(table.StyleRounded)
	return t.Render()
}
