package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jetlinks-ai/aistaff/internal/config"
	"github.com/jetlinks-ai/aistaff/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the local setup: config, secrets, database, workspace",
		Run: func(cmd *cobra.Command, args []string) {
			ok := true
			check := func(name string, err error) {
				if err != nil {
					ok = false
					fmt.Printf("  ✗ %s: %v\n", name, err)
				} else {
					fmt.Printf("  ✓ %s\n", name)
				}
			}

			fmt.Println("aistaff doctor")

			cfg, err := config.Load(resolveConfigPath())
			check("config", err)
			if err != nil {
				os.Exit(1)
			}

			if cfg.Server.AuthSecret == "" {
				check("auth secret", fmt.Errorf("AISTAFF_AUTH_SECRET is not set"))
			} else {
				check("auth secret", nil)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db, err := store.Open(cfg.Database.DSN)
			check("database", err)
			if err == nil {
				check("schema", db.MigrateUp())
				_, listErr := db.ListTeams(ctx)
				check("query", listErr)
				db.Close()
			}

			check("workspace dir", os.MkdirAll(cfg.Workspace.Default, 0o755))
			check("outputs dir", os.MkdirAll(cfg.Outputs.Dir, 0o755))

			if cfg.Providers.Native.APIKey == "" {
				fmt.Println("  ! native provider has no API key (AISTAFF_NATIVE_API_KEY)")
			}

			if !ok {
				os.Exit(1)
			}
		},
	}
}
