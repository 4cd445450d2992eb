// Package cli implements storectl, the operator tool for pricing checks,
// audit migrations and test tokens.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/toko-apparel/internal/obs"
)

// NewRootCommand builds the storectl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel string
	logger := zerolog.Nop()

	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operator tooling for the apparel storefront gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger = obs.NewLogger("console", logLevel).With().Str("component", "storectl").Logger()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPriceCommand(),
		newOrderTotalCommand(),
		newMigrateCommand(func() zerolog.Logger { return logger }),
		newTokenCommand(),
	)
	return root
}

// Execute runs storectl with the process arguments.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, path string, dst any) error {
	var r io.Reader
	if path == "" || path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}
