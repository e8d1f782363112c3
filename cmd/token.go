package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		teamID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user and team (operator tooling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.Server.AuthSecret == "" {
				return fmt.Errorf("AISTAFF_AUTH_SECRET is not set")
			}
			if userID == "" || teamID == "" {
				return fmt.Errorf("--user and --team are required")
			}
			resolver := auth.NewJWTResolver([]byte(cfg.Server.AuthSecret))
			token, err := resolver.Mint(userID, teamID, capability.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (subject)")
	cmd.Flags().StringVar(&teamID, "team", "", "active team id")
	cmd.Flags().StringVar(&role, "role", "member", "role: owner, admin, or member")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
