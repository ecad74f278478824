package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/chainfile"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
	"github.com/tjfontaine/phoenix-bypass/internal/registration"
)

func newChainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Work with chain files",
	}
	cmd.AddCommand(newChainsCheckCmd())
	return cmd
}

func newChainsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a chain file against the enabled modules",
		Long: `Decodes a YAML chain file and binds every step's options against the
modules enabled by the config file, exactly as an import would.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			r := registration.NewRegistry(cfg.Bypasses.Disabled, slog.New(slog.NewTextHandler(io.Discard, nil)))

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			file, err := chainfile.Decode(f)
			if err != nil {
				return err
			}
			return checkChains(cmd.OutOrStdout(), r, file)
		},
	}
}

// checkChains reports every chain of file and fails if any is invalid.
func checkChains(w io.Writer, r *bypass.Registry, file *chainfile.File) error {
	var errs error
	seen := make(map[string]bool, len(file.Chains))
	for _, c := range file.Chains {
		var chainErr error
		if c.Name == "" {
			chainErr = errors.New("name is required")
		} else if seen[c.Name] {
			chainErr = errors.New("duplicate name")
		}
		seen[c.Name] = true

		for i, step := range c.Bypasses {
			if _, err := r.Bind(step.Category, step.Name, step.Options); err != nil {
				chainErr = multierr.Append(chainErr, fmt.Errorf("bypass %d: %w", i+1, err))
			}
		}

		if chainErr != nil {
			for _, e := range multierr.Errors(chainErr) {
				fmt.Fprintf(w, "FAIL %s: %v\n", c.Name, e)
			}
			errs = multierr.Append(errs, fmt.Errorf("chain %q: %w", c.Name, chainErr))
			continue
		}
		fmt.Fprintf(w, "ok   %s (%d bypasses)\n", c.Name, len(c.Bypasses))
	}
	if errs != nil {
		return fmt.Errorf("%d of %d chains invalid", len(multierr.Errors(errs)), len(file.Chains))
	}
	return nil
}
