// Package cli implements the directauth command line tool.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/phsym/console-slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the command tree around its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "directauth",
		Short:         "OAuth2 Direct Authentication client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			setupLogging(verbose)
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	v.SetEnvPrefix("DIRECTAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringP("config-file", "f", "directauth.yaml", "config file")
	flags.String("issuer", "", "issuer URL, e.g. https://example.okta.com")
	flags.String("client-id", "", "OAuth2 client id")
	flags.String("client-secret", "", "OAuth2 client secret (confidential clients only)")
	flags.StringSlice("scopes", nil, "requested scopes")
	flags.String("auth-server-id", "", "custom authorization server id")
	flags.String("ca-file", "", "PEM file with an extra CA to trust, e.g. the one written by mock-server")

	_ = v.BindPFlag("config_file", flags.Lookup("config-file"))
	_ = v.BindPFlag("issuer", flags.Lookup("issuer"))
	_ = v.BindPFlag("client_id", flags.Lookup("client-id"))
	_ = v.BindPFlag("client_secret", flags.Lookup("client-secret"))
	_ = v.BindPFlag("scopes", flags.Lookup("scopes"))
	_ = v.BindPFlag("auth_server_id", flags.Lookup("auth-server-id"))
	_ = v.BindPFlag("ca_file", flags.Lookup("ca-file"))

	rootCmd.AddCommand(
		newLoginCommand(v),
		newMockServerCommand(),
		newConfigCommand(v),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	if os.Getenv("PRETTY_LOGS") != "false" {
		slog.SetDefault(slog.New(
			console.NewHandler(os.Stderr, &console.HandlerOptions{Level: logLevel}),
		))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
