package proofgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrCheckpointNotFound is returned when a checkpoint id has no stored
// record.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore persists compaction checkpoints under the
// provenance/checkpoints/ layout. Checkpoints are append-only: Put of an
// existing id fails.
type CheckpointStore interface {
	Put(ctx context.Context, cp *Checkpoint) error
	Get(ctx context.Context, id string) (*Checkpoint, error)
}

// FSCheckpointStore keeps checkpoints as JSON files in a local directory.
type FSCheckpointStore struct {
	dir string
}

// NewFSCheckpointStore creates the directory if needed.
func NewFSCheckpointStore(dir string) (*FSCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("proofgraph: checkpoint dir: %w", err)
	}
	return &FSCheckpointStore{dir: dir}, nil
}

func (s *FSCheckpointStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FSCheckpointStore) Put(ctx context.Context, cp *Checkpoint) error {
	_ = ctx
	path := s.path(cp.CheckpointID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("proofgraph: checkpoint %s already stored", cp.CheckpointID)
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (s *FSCheckpointStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	_ = ctx
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("proofgraph: parse checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

// S3CheckpointStore keeps checkpoints as objects in an S3 bucket.
type S3CheckpointStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3CheckpointStore wraps an S3 client. prefix defaults to
// "provenance/checkpoints/".
func NewS3CheckpointStore(client *s3.Client, bucket, prefix string) *S3CheckpointStore {
	if prefix == "" {
		prefix = "provenance/checkpoints/"
	}
	return &S3CheckpointStore{client: client, bucket: bucket, prefix: prefix}
}

// NewS3CheckpointStoreFromEnv builds an S3-backed store over the ambient
// AWS configuration chain (environment, shared config, instance role).
func NewS3CheckpointStoreFromEnv(ctx context.Context, bucket, prefix string) (*S3CheckpointStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("proofgraph: aws config: %w", err)
	}
	return NewS3CheckpointStore(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

func (s *S3CheckpointStore) key(id string) string { return s.prefix + id + ".json" }

func (s *S3CheckpointStore) Put(ctx context.Context, cp *Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(cp.CheckpointID)),
		Body:        bytes.NewReader(raw),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return fmt.Errorf("proofgraph: s3 put checkpoint %s: %w", cp.CheckpointID, err)
	}
	return nil
}

func (s *S3CheckpointStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	defer func() { _ = out.Body.Close() }()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("proofgraph: parse checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

// GCSCheckpointStore keeps checkpoints as objects in a GCS bucket.
type GCSCheckpointStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSCheckpointStore wraps a GCS client. prefix defaults to
// "provenance/checkpoints/".
func NewGCSCheckpointStore(client *storage.Client, bucket, prefix string) *GCSCheckpointStore {
	if prefix == "" {
		prefix = "provenance/checkpoints/"
	}
	return &GCSCheckpointStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSCheckpointStore) object(id string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + id + ".json")
}

func (s *GCSCheckpointStore) Put(ctx context.Context, cp *Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	// DoesNotExist precondition keeps the store append-only.
	w := s.object(cp.CheckpointID).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("proofgraph: gcs put checkpoint %s: %w", cp.CheckpointID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("proofgraph: gcs put checkpoint %s: %w", cp.CheckpointID, err)
	}
	return nil
}

func (s *GCSCheckpointStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	r, err := s.object(id).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	defer func() { _ = r.Close() }()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("proofgraph: parse checkpoint %s: %w", id, err)
	}
	return &cp, nil
}
