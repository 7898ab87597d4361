package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"replyBandit/pkg/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token",
	Long: `Signs a bearer token for the decision API with the configured JWT
secret. Use --role ADMIN for the /admin routes.

Examples:
  banditctl token --user dialog-service
  banditctl token --user ops --role ADMIN --ttl 1h`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("user", "", "user id placed in the token (required)")
	tokenCmd.Flags().String("role", "USER", "role placed in the token")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().String("secret", "", "signing secret (defaults to the configured jwt.secret_key)")
	tokenCmd.Flags().String("issuer", "", "issuer (defaults to the configured jwt.issuer)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	secret, _ := cmd.Flags().GetString("secret")
	issuer, _ := cmd.Flags().GetString("issuer")

	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	if secret == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.JWT.SecretKey
		if issuer == "" {
			issuer = cfg.JWT.Issuer
		}
	}

	utils.SetJWTConfig(secret, issuer)
	token, err := utils.GenerateJWT(user, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
