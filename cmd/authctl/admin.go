package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"anoint-auth/internal/domain"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <email> <code>",
		Short: "Confirm an email address with its verification code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			sess, err := a.Identity.VerifyEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verified %s (%s)\n", sess.User.Email, sess.User.ID)
			return nil
		},
	}
}

func grantAdminCmd() *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "grant-admin <user-id>",
		Short: "Set the admin flag on a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Profiles == nil {
				return errors.New("profiles are disabled (PROFILES_ENABLED=false)")
			}

			ctx := cmd.Context()
			profile, err := a.Profiles.GetByID(ctx, args[0])
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			now := time.Now().UTC()
			if errors.Is(err, pgx.ErrNoRows) {
				profile = domain.Profile{ID: args[0], CreatedAt: now}
			}
			profile.IsAdmin = !revoke
			profile.UpdatedAt = now
			if err := a.Profiles.Upsert(ctx, profile); err != nil {
				return err
			}
			// El rol cacheado quedaria obsoleto hasta su TTL.
			a.Cache.ClearUser(ctx, profile.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "user %s admin=%t\n", profile.ID, profile.IsAdmin)
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Clear the admin flag instead")
	return cmd
}
