// Command mimir is a debug CLI that evaluates gates, configs and layers
// against a local rule payload, without touching the network. It is the
// fastest way to answer "what would user X get?" while authoring rules.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir"
)

var (
	specsPath string
	userJSON  string
	userID    string
)

func main() {
	root := &cobra.Command{
		Use:   "mimir",
		Short: "Evaluate feature gates and experiments against a local rule payload",
		Long: `mimir evaluates gates, dynamic configs and layers the same way the SDK
does in production, but against a rule payload loaded from disk
(a saved download_config_specs response) instead of the control plane.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&specsPath, "specs", "", "path to a rule payload JSON file (required)")
	root.PersistentFlags().StringVar(&userJSON, "user", "", "user as a JSON object")
	root.PersistentFlags().StringVar(&userID, "user-id", "", "shorthand for --user '{\"userID\":...}'")
	_ = root.MarkPersistentFlagRequired("specs")

	root.AddCommand(
		newEvalCommand("check-gate", "Evaluate a feature gate", func(c *mimir.Client, u mimir.User, name string) (any, error) {
			return c.GetGate(u, name), nil
		}),
		newEvalCommand("get-config", "Evaluate a dynamic config or experiment", func(c *mimir.Client, u mimir.User, name string) (any, error) {
			return c.GetConfig(u, name), nil
		}),
		newEvalCommand("get-layer", "Evaluate a layer", func(c *mimir.Client, u mimir.User, name string) (any, error) {
			return c.GetLayer(u, name), nil
		}),
		newInitResponseCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEvalCommand builds one "evaluate <name>" subcommand.
func newEvalCommand(use, short string, eval func(*mimir.Client, mimir.User, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, user, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Shutdown(cmd.Context())

			result, err := eval(client, user, args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newInitResponseCommand() *cobra.Command {
	var hashAlgo string

	cmd := &cobra.Command{
		Use:   "init-response",
		Short: "Produce the client bootstrap payload for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, user, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Shutdown(cmd.Context())

			response := client.GetClientInitializeResponse(user, mimir.ProjectionOptions{HashAlgorithm: hashAlgo})
			if response == nil {
				return fmt.Errorf("rule payload did not install; nothing to serve")
			}
			return printJSON(response)
		},
	}

	cmd.Flags().StringVar(&hashAlgo, "hash", "none", "name hashing: sha256, djb2 or none")
	return cmd
}

// setup builds a local-mode client seeded from the --specs file and the
// user from flags.
func setup(ctx context.Context) (*mimir.Client, mimir.User, error) {
	payload, err := os.ReadFile(specsPath)
	if err != nil {
		return nil, mimir.User{}, fmt.Errorf("failed to read specs file: %w", err)
	}

	var user mimir.User
	if userJSON != "" {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			return nil, mimir.User{}, fmt.Errorf("invalid --user JSON: %w", err)
		}
	}
	if userID != "" {
		user.UserID = userID
	}

	client, err := mimir.NewClient(ctx, "local", &mimir.Options{
		LocalMode:           true,
		BootstrapValues:     string(payload),
		DisableRulesetsSync: true,
		DisableIDListsSync:  true,
		IDListsInitStrategy: "none",
		LogLevel:            "error",
		LogFormat:           "text",
	})
	if err != nil {
		return nil, mimir.User{}, err
	}
	return client, user, nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
