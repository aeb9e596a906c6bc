// Package backup uploads encrypted SQLite snapshots to S3-compatible storage
// and restores them.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/luckylove/server/internal/database"
)

// ObjectStore is the subset of the S3 API the manager uses.
type ObjectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Prefix     string
	KeepDays   int
}

// NewS3Client builds a path-style client, which R2 and MinIO both accept.
func NewS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Object describes one stored snapshot.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Manager struct {
	client ObjectStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(client ObjectStore, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const keyLayout = "20060102T150405Z"

func (m *Manager) objectKey(at time.Time) string {
	return m.cfg.Prefix + "luckylove-" + at.Format(keyLayout) + ".db.enc"
}

// Run snapshots db, seals the copy and uploads it. It returns the object key.
func (m *Manager) Run(ctx context.Context, db *sql.DB) (Object, error) {
	dir, err := os.MkdirTemp("", "luckylove-backup-")
	if err != nil {
		return Object{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if err := database.Snapshot(ctx, db, snapshot); err != nil {
		return Object{}, err
	}
	plain, err := os.ReadFile(snapshot)
	if err != nil {
		return Object{}, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return Object{}, fmt.Errorf("seal snapshot: %w", err)
	}

	now := m.now()
	obj := Object{Key: m.objectKey(now), Size: int64(len(sealed)), LastModified: now}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", obj.Key, err)
	}

	m.logger.Info("backup uploaded", "key", obj.Key, "bytes", obj.Size)
	return obj, nil
}

// List returns the stored snapshots, newest first.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	var out []Object
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !strings.HasSuffix(key, ".db.enc") {
				continue
			}
			out = append(out, Object{
				Key:          key,
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// Prune deletes snapshots older than the retention window. The newest
// snapshot is always kept. It returns how many objects were deleted.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.cfg.KeepDays <= 0 {
		return 0, nil
	}
	objects, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().AddDate(0, 0, -m.cfg.KeepDays)

	deleted := 0
	for i, o := range objects {
		if i == 0 || !o.LastModified.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(o.Key),
		}); err != nil {
			m.logger.Warn("delete old backup", "key", o.Key, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Restore downloads key, opens it and writes the database to dstPath after
// an integrity check. dstPath must not be the live database.
func (m *Manager) Restore(ctx context.Context, key, dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("restore target %s already exists", dstPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat restore target: %w", err)
	}

	res, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer res.Body.Close()

	sealed, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	plain, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, plain, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(ctx, dstPath); err != nil {
		os.Remove(dstPath)
		return err
	}

	m.logger.Info("backup restored", "key", key, "path", dstPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
