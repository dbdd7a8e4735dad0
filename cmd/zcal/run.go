package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run COMMAND [KEY=VALUE ...]",
		Short: "Run a single command against the controller",
		Long: `Run a single command against the controller, for example:

  zcal run MOVE_TO_ZSWITCH
  zcal run PROBE_ZSWITCH SAMPLES=5 Z_CALC=average
  zcal run CALIBRATE_ALL_Z_OFFSETS TOOLS=0,1,2 REF=0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, flags.sim)
			if err != nil {
				return err
			}
			defer a.Close()

			a.machine.OnHold = func(msg string) {
				if msg != "" {
					fmt.Fprintln(cmd.OutOrStdout(), bold("%s", msg))
				}
			}

			out, err := a.svc.Exec(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			printStatus(cmd.OutOrStdout(), a.svc.Status())
			return nil
		},
	}
}
