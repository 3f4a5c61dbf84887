/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/devvluca/EclesIA/internal/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the eclesia build",
	Long: `Show which eclesia build is installed.

Bug reports to the IECB team should include the output of
"eclesia version --json".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		asJSON, _ := cmd.Flags().GetBool("json")
		return printVersion(cmd.OutOrStdout(), short, asJSON)
	},
}

func printVersion(w io.Writer, short, asJSON bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(version.Current()), "encode version")
	case short:
		_, err := fmt.Fprintln(w, version.Short())
		return err
	default:
		_, err := fmt.Fprintln(w, version.Info())
		return err
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolP("short", "s", false, "Print only the version number")
	versionCmd.Flags().Bool("json", false, "Print the build as JSON")
	versionCmd.MarkFlagsMutuallyExclusive("short", "json")
}
