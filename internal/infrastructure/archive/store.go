// Package archive keeps emitted clinical documents in MinIO object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("document archive is not configured")

// Config holds archive configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store writes and reads archived documents
type Store struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New creates a store. An empty endpoint returns a disabled store whose
// writes fail with ErrDisabled.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		return &Store{logger: logger}, nil
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Enabled reports whether the store has a backend
func (s *Store) Enabled() bool { return s != nil && s.client != nil }

// EnsureBucket creates the bucket when it does not exist
func (s *Store) EnsureBucket(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("archive bucket created", zap.String("bucket", s.bucket))
	return nil
}

// ObjectKey returns the key of a document: <patient>/<document>.xml
func ObjectKey(patientID, documentID string) string {
	return path.Join(sanitize(patientID), sanitize(documentID)+".xml")
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

// Put stores a CDA document and returns its object key
func (s *Store) Put(ctx context.Context, patientID, documentID string, xml []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	key := ObjectKey(patientID, documentID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(xml), int64(len(xml)), minio.PutObjectOptions{
		ContentType: "text/xml",
		UserMetadata: map[string]string{
			"patient-id":  patientID,
			"document-id": documentID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Debug("document archived",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(xml)))
	return key, nil
}

// Get reads an archived document
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
