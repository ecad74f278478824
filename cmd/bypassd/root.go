package main

import (
	"github.com/spf13/cobra"

	"github.com/tjfontaine/phoenix-bypass/internal/api/controlplane"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bypassd",
		Short: "Payload bypass chain service",
		Long: `bypassd stores ordered chains of payload transformations (encoders,
compressors, obfuscators) and runs them over generated stagers.`,
		Version:       controlplane.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringP("config", "c", config.DefaultPath, "config file")

	root.AddCommand(
		newServeCmd(),
		newModulesCmd(),
		newKeygenCmd(),
		newChainsCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
