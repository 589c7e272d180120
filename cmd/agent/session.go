package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/hrisclient"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/session"
)

var (
	loginToken  string
	loginUserID string

	mintUserID string
	mintRole   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for later runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginToken == "" {
			return errors.New("--token is required")
		}
		userID := loginUserID
		if userID == "" {
			userID = cfg.Agent.UserID
		}
		if userID == "" {
			return errors.New("--user is required when AGENT_USER_ID is not set")
		}

		store := credentialStore()
		if err := store.Save(session.Credentials{Token: loginToken, UserID: userID}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "credentials saved to %s\n", store.Path())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return credentialStore().Clear()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's attendance and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentialStore().Load()
		if err != nil {
			return err
		}
		client := hrisclient.NewClient(cfg.Agent.ServerURL, creds.Token)
		out := cmd.OutOrStdout()

		today, err := client.Today(cmd.Context())
		switch {
		case errors.Is(err, hrisclient.ErrNotFound):
			fmt.Fprintln(out, "today: no attendance yet")
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "today: checked in %s", today.CheckinTime)
			if today.CheckoutTime != nil {
				fmt.Fprintf(out, ", checked out %s", *today.CheckoutTime)
			}
			if today.WorkingHours != nil {
				fmt.Fprintf(out, " (%.2fh)", *today.WorkingHours)
			}
			fmt.Fprintln(out)
		}

		stats, err := client.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "month: %d days, %.2fh\n", stats.MonthDays, stats.MonthHours)
		fmt.Fprintf(out, "total: %d days, %.2fh (avg %.2fh)\n", stats.TotalDays, stats.TotalHours, stats.AverageHours)
		return nil
	},
}

// mintTokenCmd signs an access token with the server secret, for local development.
var mintTokenCmd = &cobra.Command{
	Use:    "mint-token",
	Short:  "Sign a development access token with JWT_SECRET_KEY",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWT.Secret == "" {
			return errors.New("JWT_SECRET_KEY is required")
		}
		if mintUserID == "" {
			return errors.New("--user is required")
		}
		role := auth.Role(mintRole)
		if role != auth.RoleAdmin && role != auth.RoleEmployee {
			return fmt.Errorf("unknown role %q", mintRole)
		}

		token, _, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration).GenerateAccessToken(mintUserID, role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token")
	loginCmd.Flags().StringVar(&loginUserID, "user", "", "user id the token belongs to")

	mintTokenCmd.Flags().StringVar(&mintUserID, "user", "", "user id")
	mintTokenCmd.Flags().StringVar(&mintRole, "role", string(auth.RoleEmployee), "admin or employee")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, mintTokenCmd)
}
