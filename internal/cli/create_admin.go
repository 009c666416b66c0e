package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewCreateAdminCmd creates or promotes an administrator account.
func NewCreateAdminCmd(configPath *string) *cobra.Command {
	var email, username string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote an existing one",
		Long:  "The password is read from ADMIN_PASSWORD.",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("ADMIN_PASSWORD")
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				return fmt.Errorf("ADMIN_PASSWORD is not set")
			}
			if username == "" {
				username = "admin"
			}

			cfg, log, flush, err := loadForCommand(*configPath)
			if err != nil {
				return err
			}
			defer flush()

			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()
			svc, err := newServices(cfg, b, log)
			if err != nil {
				return err
			}

			u, created, err := svc.identity.EnsureAdmin(cmd.Context(), email, username, password)
			if err != nil {
				return err
			}
			log.Info("admin ready", "id", u.ID, "email", u.Email, "created", created)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&username, "username", "", "username for a new account")
	return cmd
}
