// Package app provides the entry point for the toolgate command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toolgate/toolgate/pkg/env"
	"github.com/toolgate/toolgate/pkg/gate/composer"
	"github.com/toolgate/toolgate/pkg/gate/config"
	"github.com/toolgate/toolgate/pkg/gate/server"
	"github.com/toolgate/toolgate/pkg/gate/tokens"
	"github.com/toolgate/toolgate/pkg/logger"
	"github.com/toolgate/toolgate/pkg/networking"
	"github.com/toolgate/toolgate/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "toolgate",
	DisableAutoGenTag: true,
	Short:             "Outbound authentication gateway for downstream tool servers",
	Long: `toolgate sits between a request-routing layer and a set of downstream
tool servers. For every outbound request it composes the authentication
metadata the destination requires:

- OAuth2 service tokens (client credentials flow), cached per destination
  and refreshed before expiry
- A filtered subset of the caller's session cookies, per destination
  allow-list
- Static headers configured per destination or globally

toolgate never originates requests on its own; it only decides what
authentication accompanies them.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the toolgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to toolgate configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toolgate forwarding server",
		Long: `Start the forwarding server. Requests under /{destination}/* are
forwarded to the destination's configured URL with composed authentication
headers attached.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "127.0.0.1:8700", "Listen address for the forwarding server")
	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		logger.Errorf("Error binding address flag: %v", err)
	}
	cmd.Flags().String("ca-bundle", "", "Path to CA certificate bundle for token endpoint TLS verification")
	if err := viper.BindPFlag("ca-bundle", cmd.Flags().Lookup("ca-bundle")); err != nil {
		logger.Errorf("Error binding ca-bundle flag: %v", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := cfg.PolicyStore()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	targets, err := cfg.TargetURLs()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	builder := networking.NewHTTPClientBuilder()
	if caBundle := viper.GetString("ca-bundle"); caBundle != "" {
		builder = builder.WithCABundle(caBundle)
	}
	httpClient, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
	}

	manager := tokens.NewManager(store, tokens.WithHTTPClient(httpClient))
	comp := composer.New(store, manager)

	srv := server.New(viper.GetString("address"), targets, comp)
	logger.Infof("Serving %d destinations", len(targets))
	return srv.Start(cmd.Context())
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the toolgate configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity
- Secret placeholder resolution
- Policy invariants (oauth2 blocks must carry token_url, client_id and
  client_secret)
- Destination URL validity`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := cfg.PolicyStore()
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			logger.Infof("Configuration is valid")
			for _, id := range store.Destinations() {
				pol, err := store.Resolve(id)
				if err != nil {
					return err
				}
				logger.Infow("destination",
					"id", id,
					"oauth2", pol.OAuth2 != nil,
					"cookie_passthrough", pol.CookiePassthrough != nil && pol.CookiePassthrough.Enabled,
					"static_headers", len(pol.StaticHeaders),
				)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			cmd.Printf("toolgate %s\n", info.Version)
			cmd.Printf("  commit:     %s\n", info.Commit)
			cmd.Printf("  built:      %s\n", info.BuildDate)
			cmd.Printf("  go version: %s\n", info.GoVersion)
			cmd.Printf("  platform:   %s\n", info.Platform)
		},
	}
}

func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}

	loader := config.NewYAMLLoader(configPath, &env.OSReader{})
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}
