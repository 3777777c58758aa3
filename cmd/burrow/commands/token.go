package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/identity"
	"github.com/dyluth/burrow/internal/printer"
)

var (
	tokenConfigPath string
	tokenUserID     string
	tokenUsername   string
	tokenTTL        time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token for a user",
	Long: `Issues a signed session token for local development and testing.

Production deployments receive tokens from the real identity provider; this
command signs with the same shared secret from burrow.yml.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenConfigPath, "config", "c", "", "path to burrow.yml (default $BURROW_CONFIG or ./burrow.yml)")
	tokenCmd.Flags().StringVarP(&tokenUserID, "user", "u", "", "user ID (required)")
	tokenCmd.Flags().StringVarP(&tokenUsername, "name", "n", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(tokenConfigPath)
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}

	idp, err := identity.NewProvider(cfg.JWTSecret)
	if err != nil {
		return printer.Error("Identity provider error", err.Error(), nil)
	}

	token, err := idp.Mint(tokenUserID, tokenUsername, tokenTTL)
	if err != nil {
		return printer.Error("Token error", err.Error(), nil)
	}

	printer.Println(token)
	return nil
}
