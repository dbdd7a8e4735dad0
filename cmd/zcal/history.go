package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mastercactapus/zcal/store"
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the history database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.Runs(limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range runs {
				state := color.GreenString("ok")
				if r.Error != "" {
					state = color.RedString("failed")
				}
				fmt.Fprintf(w, "#%d %s %s %s\n", r.ID, r.StartedAt.Local().Format(timeFormat), bold("%s", r.Command), state)
				if r.Error != "" {
					fmt.Fprintf(w, "    %s\n", r.Error)
				}
				for _, t := range r.Results {
					fmt.Fprintf(w, "    T%-3d trigger %.4f offset %+.4f\n", t.Tool, t.ZTrigger, t.ZOffset)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show (0 for all)")
	return cmd
}
