package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luckylove/server/internal/backup"
	"github.com/luckylove/server/internal/config"
	"github.com/luckylove/server/internal/database"
	"github.com/luckylove/server/internal/push"
)

func newVAPIDKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}

func backupConfig(b config.Backup) backup.Config {
	return backup.Config{
		Endpoint:   b.Endpoint,
		Bucket:     b.Bucket,
		Region:     b.Region,
		AccessKey:  b.AccessKey,
		SecretKey:  b.SecretKey,
		Passphrase: b.Passphrase,
		Prefix:     b.Prefix,
		KeepDays:   b.KeepDays,
	}
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	var list bool
	var restoreKey, restoreTo string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload an encrypted database snapshot and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(flags)
			if err != nil {
				return err
			}
			if !cfg.Backup.Enabled() {
				return errors.New("BACKUP_S3_BUCKET and BACKUP_PASSPHRASE are required")
			}
			bc := backupConfig(cfg.Backup)
			m := backup.NewManager(backup.NewS3Client(bc), bc, logger.With("component", "backup"))
			ctx := cmd.Context()

			switch {
			case list:
				objects, err := m.List(ctx)
				if err != nil {
					return err
				}
				for _, o := range objects {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format("2006-01-02 15:04"))
				}
				return nil
			case restoreKey != "":
				if restoreTo == "" {
					return errors.New("--to is required with --restore")
				}
				return m.Restore(ctx, restoreKey, restoreTo)
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if _, err := m.Run(ctx, db); err != nil {
				return err
			}
			n, err := m.Prune(ctx)
			if err != nil {
				return err
			}
			logger.Info("backup complete", "pruned", n)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&list, "list", false, "List stored snapshots instead of uploading")
	f.StringVar(&restoreKey, "restore", "", "Object key of the snapshot to restore")
	f.StringVar(&restoreTo, "to", "", "Path the restored database is written to")
	return cmd
}
