// Package cli implements the authcore-admin command tree.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the command tree. Connection settings come from flags or the
// AUTHCORE_ADMIN_SERVER and AUTHCORE_ADMIN_TOKEN environment variables.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AUTHCORE_ADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "authcore-admin",
		Short: "Administer an authcore authorization server",
		Long: `authcore-admin manages signing keys and admin API tokens through the admin API,
and performs the offline tasks that have to happen before a server can start:
generating a master encryption key and bootstrapping the first admin token.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("server", "http://localhost:8080", "base URL of the authcore server")
	root.PersistentFlags().String("token", "", "admin API token")
	root.PersistentFlags().String("config", "", "server configuration file, for offline commands")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("token", root.PersistentFlags().Lookup("token"))
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(
		newMEKCommand(),
		newKeysCommand(v),
		newTokensCommand(v),
		newAuditCommand(v),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func apiFrom(v *viper.Viper) (*apiClient, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("an admin token is required: pass --token or set AUTHCORE_ADMIN_TOKEN")
	}
	return newAPIClient(v.GetString("server"), token), nil
}
