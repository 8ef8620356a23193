package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoicer/internal/backup"
	"invoicer/internal/logger"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or restore the whole ledger",
	Long: fmt.Sprintf(`Export every collection into one versioned JSON document, or restore such a
document. A restore replaces all data and is all-or-nothing: if any write
fails, the collections already written are put back.

Backups up to schemaVersion %d are accepted. With --s3 the document is
stored in or fetched from the bucket named by BACKUP_S3_BUCKET.`, backup.CurrentSchemaVersion),
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup document",
	Example: `  invoicer backup export --file backup.json
  invoicer backup export --s3`,
	RunE: runBackupExport,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [file]",
	Short: "Replace all data with a backup document",
	Example: `  invoicer backup restore backup.json
  invoicer backup restore --s3                     # newest backup in the bucket
  invoicer backup restore --s3 --key invoicer/backup-20240610T093000Z.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackupRestore,
}

// ArchiveOutput is printed after an S3 upload
type ArchiveOutput struct {
	Bucket        string         `json:"bucket"`
	Key           string         `json:"key"`
	SchemaVersion int            `json:"schemaVersion"`
	Counts        map[string]int `json:"counts"`
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupExportCmd, backupRestoreCmd)

	backupExportCmd.Flags().String("file", "", "Backup file path (default: stdout)")
	backupExportCmd.Flags().Bool("s3", false, "Upload to the configured S3 bucket")

	backupRestoreCmd.Flags().Bool("s3", false, "Fetch from the configured S3 bucket")
	backupRestoreCmd.Flags().String("key", "", "S3 object key (default: newest backup)")
}

func runBackupExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("backup")
	outputPath, timeoutSecs := commandOptions(cmd)
	filePath, _ := cmd.Flags().GetString("file")
	useS3, _ := cmd.Flags().GetBool("s3")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := backup.NewCodec(l.Store()).ExportAll(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	body, err := backup.MarshalSnapshot(snap)
	if err != nil {
		return err
	}

	if useS3 {
		archive, bucket, err := createArchive(ctx, log)
		if err != nil {
			return err
		}
		key, err := archive.Put(ctx, body, snap.ExportedAt)
		if err != nil {
			return err
		}
		return outputJSON(ArchiveOutput{
			Bucket:        bucket,
			Key:           key,
			SchemaVersion: snap.SchemaVersion,
			Counts:        snap.Counts(),
		}, outputPath, log)
	}

	if filePath == "" {
		_, err := os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(filePath, body, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	log.Info().
		Str("file", filePath).
		Int("bytes", len(body)).
		Interface("counts", snap.Counts()).
		Msg("Backup written")
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("backup")
	outputPath, timeoutSecs := commandOptions(cmd)
	useS3, _ := cmd.Flags().GetBool("s3")
	key, _ := cmd.Flags().GetString("key")

	if useS3 == (len(args) == 1) {
		return fmt.Errorf("give either a backup file or --s3")
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	var body []byte
	var err error
	if useS3 {
		archive, _, err := createArchive(ctx, log)
		if err != nil {
			return err
		}
		if key == "" {
			if key, err = archive.Latest(ctx); err != nil {
				return fmt.Errorf("no backup to restore: %w", err)
			}
		}
		if body, err = archive.Get(ctx, key); err != nil {
			return err
		}
		log.Info().Str("key", key).Msg("Fetched backup from S3")
	} else {
		if body, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("failed to read backup file: %w", err)
		}
	}

	snap, err := backup.ParseBackupPayload(body)
	if err != nil {
		return handleLedgerError(err, log)
	}

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := backup.NewCodec(l.Store()).RestoreAll(ctx, snap); err != nil {
		return handleLedgerError(err, log)
	}

	return outputJSON(map[string]interface{}{
		"restored":      true,
		"schemaVersion": snap.SchemaVersion,
		"exportedAt":    snap.ExportedAt,
		"counts":        snap.Counts(),
	}, outputPath, log)
}

func createArchive(ctx context.Context, log zerolog.Logger) (*backup.S3Archive, string, error) {
	if appConfig == nil || appConfig.BackupS3Bucket == "" {
		return nil, "", fmt.Errorf("BACKUP_S3_BUCKET environment variable is required for --s3")
	}

	archive, err := backup.NewS3Archive(ctx, backup.S3Config{
		Bucket:    appConfig.BackupS3Bucket,
		Prefix:    appConfig.BackupS3Prefix,
		Region:    appConfig.BackupS3Region,
		Endpoint:  appConfig.BackupS3Endpoint,
		AccessKey: appConfig.BackupS3AccessKey,
		SecretKey: appConfig.BackupS3SecretKey,
		PathStyle: appConfig.BackupS3PathStyle,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create S3 client")
		return nil, "", fmt.Errorf("failed to initialize S3 backup archive: %w", err)
	}
	return archive, appConfig.BackupS3Bucket, nil
}
