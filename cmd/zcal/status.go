package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02 15:04:05"

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func NewStatusCommand() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the offsets held by a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := fetchStatus(server)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the zcal server")
	return cmd
}

func fetchStatus(server string) (zswitch.Status, error) {
	var st zswitch.Status
	c := &http.Client{Timeout: 5 * time.Second}
	resp, err := c.Get(server + "/api/status")
	if err != nil {
		return st, errors.Wrap(err, "failed to get status")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, errors.Errorf("failed to get status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, errors.Wrap(err, "decode status")
}

func printStatus(w io.Writer, st zswitch.Status) {
	fmt.Fprintf(w, "%s\n", bold("Calibration:"))
	switchState := color.GreenString("configured")
	if !st.HasSwitchPos {
		switchState = color.RedString("not configured")
	}
	fmt.Fprintf(w, "  Switch position: %s\n", switchState)
	fmt.Fprintf(w, "  Z method: %s (trim %d)\n", bold("%s", st.Method), st.TrimCount)
	fmt.Fprintf(w, "  Reference tool: %s\n", bold("T%d", st.RefTool))

	if len(st.ProbeResults) == 0 {
		fmt.Fprintln(w, "\nNo tools measured.")
		return
	}

	ids := make([]int, 0, len(st.ProbeResults))
	for id := range st.ProbeResults {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Fprintf(w, "\n%s\n", bold("Tools:"))
	fmt.Fprintf(w, "  %-5s %10s %10s  %s\n", "TOOL", "TRIGGER", "OFFSET", "LAST RUN")
	for _, id := range ids {
		r := st.ProbeResults[id]
		offset := fmt.Sprintf("%+10.4f", r.ZOffset)
		switch {
		case r.RefTool != nil && *r.RefTool == r.Tool:
			offset = color.New(color.Bold, color.FgGreen).Sprint(offset)
		case r.RefTool == nil:
			// measured alone, offset not meaningful
			offset = color.YellowString(offset)
		}
		fmt.Fprintf(w, "  T%-4d %10.4f %s  %s\n", r.Tool, r.ZTrigger, offset, r.LastRun.Local().Format(timeFormat))
	}
}
