package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/luckylove/server/internal/config"
	"github.com/luckylove/server/internal/database"
	"github.com/luckylove/server/internal/identity"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/store"
)

const devTokenTTL = 30 * 24 * time.Hour

func newSeedDebugCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-debug",
		Short: "Create the debug couple and print development tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(flags)
			if err != nil {
				return err
			}
			if !cfg.Debug.Enabled() {
				return errors.New("DEBUG_USER_ID and DEBUG_PARTNER_ID are required")
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			couple, err := seedDebugCouple(cmd.Context(), db, cfg.Debug)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "couple %s\n", couple.ID)
			if cfg.Supabase.JWTSecret == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "SUPABASE_JWT_SECRET not set; skipping tokens")
				return nil
			}
			return printDevTokens(cmd.OutOrStdout(), cfg, time.Now())
		},
	}
}

// seedDebugCouple links the debug user and partner into one couple. Running
// it again reuses the couple the debug user already belongs to.
func seedDebugCouple(ctx context.Context, db *sql.DB, d config.Debug) (*model.Couple, error) {
	var couple *model.Couple
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		profiles := store.NewProfileStore(tx)
		couples := store.NewCoupleStore(tx)

		existing, err := profiles.GetByUserID(ctx, d.UserID)
		if err != nil {
			return err
		}
		if existing != nil && existing.CoupleID != nil {
			couple, err = couples.GetByID(ctx, *existing.CoupleID)
			if err != nil {
				return err
			}
		}
		if couple == nil {
			if couple, err = couples.Create(ctx); err != nil {
				return err
			}
		}

		baseAlias, partnerAlias := "Base", "Pareja"
		if _, err := profiles.Upsert(ctx, d.UserID, d.Email, &baseAlias, &couple.ID); err != nil {
			return err
		}
		_, err = profiles.Upsert(ctx, d.PartnerID, d.PartnerEmail, &partnerAlias, &couple.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("seed debug couple: %w", err)
	}
	return couple, nil
}

func printDevTokens(w io.Writer, cfg *config.Config, now time.Time) error {
	for _, u := range []struct{ id, email string }{
		{cfg.Debug.UserID, cfg.Debug.Email},
		{cfg.Debug.PartnerID, cfg.Debug.PartnerEmail},
	} {
		token, err := identity.IssueToken(cfg.Supabase.JWTSecret, u.id, u.email, devTokenTTL, now)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", u.email, err)
		}
		fmt.Fprintf(w, "%s\t%s\n", u.email, token)
	}
	return nil
}

func newDevTokenCmd(flags *rootFlags) *cobra.Command {
	var email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "dev-token <user-id>",
		Short: "Sign an access token with the project JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(flags)
			if err != nil {
				return err
			}
			if cfg.Supabase.JWTSecret == "" {
				return errors.New("SUPABASE_JWT_SECRET is required")
			}
			token, err := identity.IssueToken(cfg.Supabase.JWTSecret, args[0], email, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
