package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/phoenix-bypass/internal/adapters/auth/apikey"
)

const keyPrefix = "bp-"

func newKeygenCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "keygen [api-key]",
		Short: "Hash an API key for the auth.users config section",
		Long: `Prints the SHA-256 hash of the given API key together with a config
snippet. A random key is generated when none is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				if key, err = randomKey(); err != nil {
					return err
				}
			}

			snippet, err := yaml.Marshal(map[string]any{
				"auth": map[string]any{
					"users": []map[string]string{{"name": user, "key_hash": apikey.HashAPIKey(key)}},
				},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API Key: %s\n", key)
			fmt.Fprintf(out, "SHA-256 Hash: %s\n", apikey.HashAPIKey(key))
			fmt.Fprintln(out, "\nAdd this to your config.yaml:")
			fmt.Fprint(out, string(snippet))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "operator", "user name recorded as the actor")
	return cmd
}

func randomKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
