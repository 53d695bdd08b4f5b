package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/anneal/internal/config"
	"github.com/copyleftdev/anneal/internal/optimization/annealer"
	"github.com/copyleftdev/anneal/internal/optimization/annealing"
)

// trajectory is the printable form of a schedule walk.
type trajectory struct {
	Kind         string    `json:"kind"`
	Updates      int       `json:"updates"`
	Truncated    bool      `json:"truncated"`
	Temperatures []float64 `json:"temperatures"`
}

func newScheduleCmd() *cobra.Command {
	var (
		sc     config.ScheduleConfig
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the temperatures a cooling schedule passes through",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1, got %d", limit)
			}
			s, err := annealer.NewSchedule(sc)
			if err != nil {
				return err
			}

			temps := annealing.Trajectory(s, limit)
			t := trajectory{
				Kind:         sc.Kind,
				Updates:      len(temps) - 1,
				Truncated:    annealing.Remaining(s, limit+1) > limit,
				Temperatures: temps,
			}

			if output != "table" {
				return writeOutput(cmd.OutOrStdout(), output, t)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tTEMPERATURE")
			for i, temp := range temps {
				fmt.Fprintf(tw, "%d\t%g\n", i, temp)
			}
			if t.Truncated {
				fmt.Fprintf(tw, "...\t(stopped after %d updates)\n", limit)
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&sc.Kind, "kind", "geometric", "Cooling schedule (geometric, linear)")
	f.Float64Var(&sc.Initial, "initial", 800, "Initial temperature")
	f.Float64Var(&sc.Constant, "constant", 0.99, "Cooling factor (geometric) or decrement (linear)")
	f.Float64Var(&sc.Stopping, "stopping", 0.001, "Stopping temperature")
	f.IntVar(&limit, "limit", 10000, "Maximum number of updates to print")
	f.StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}
