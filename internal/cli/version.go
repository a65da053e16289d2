package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dayplan/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "dayplan %s (%s)\n", buildinfo.String(), info["go"])
			return nil
		},
	}
}
