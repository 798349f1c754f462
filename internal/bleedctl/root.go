// Package bleedctl implements the bleedctl command line: offline audits of
// iCalendar exports, token minting and a load generator for a running
// server.
package bleedctl

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/founderbleed/bleed/pkg/logger"
)

// NewRootCommand builds the command tree. Output goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "bleedctl",
		Short:         "Founder Bleed audit tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(cmd.ErrOrStderr(), logger.FormatText); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return logger.SetLevelString(logLevel)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newClassifyCommand(),
		newAuditCommand(),
		newTokenCommand(),
		newLoadCommand(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
