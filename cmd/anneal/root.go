package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/anneal/internal/logging"
)

// newRootCmd builds the command tree. It is a constructor rather than a
// package variable so tests get fresh flag state.
func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "anneal",
		Short:         "Simulated annealing runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (debug, info, warn, error)")

	newLogger := func(cmd *cobra.Command) *zap.Logger {
		base := logging.NewWithFormat(logging.ParseLevel(logLevel), logging.FormatText, cmd.ErrOrStderr())
		return logging.NewZapLogger(base)
	}

	root.AddCommand(newRunCmd(newLogger), newScheduleCmd())
	return root
}

// writeOutput encodes v as indented JSON or as YAML.
func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Go through JSON so the keys follow the json tags
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
