// Package s3 stores graph snapshots as JSON objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectAPI is the subset of *s3.Client the store needs.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotStorage writes the snapshot to <prefix>/<name>.json.
type SnapshotStorage struct {
	client objectAPI
	bucket string
	key    string
}

// NewSnapshotStorageParams configures a SnapshotStorage.
type NewSnapshotStorageParams struct {
	Client objectAPI
	Bucket string
	// Prefix is prepended to the object key (default "snapshots").
	Prefix string
	// Name selects the snapshot object (default store.DefaultName).
	Name string
}

func NewSnapshotStorage(params NewSnapshotStorageParams) (*SnapshotStorage, error) {
	if params.Client == nil {
		return nil, errors.New("s3 client is nil")
	}
	if params.Bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	prefix := params.Prefix
	if prefix == "" {
		prefix = "snapshots"
	}
	name := params.Name
	if name == "" {
		name = store.DefaultName
	}
	return &SnapshotStorage{
		client: params.Client,
		bucket: params.Bucket,
		key:    path.Join(prefix, name+".json"),
	}, nil
}

// Key returns the object key the snapshot is written to.
func (s *SnapshotStorage) Key() string {
	return s.key
}

func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snap common.Snapshot) error {
	data, err := store.Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}
	return nil
}

func (s *SnapshotStorage) LoadSnapshot(ctx context.Context) (common.Snapshot, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return common.Snapshot{}, store.ErrNoSnapshot
		}
		return common.Snapshot{}, fmt.Errorf("failed to get snapshot from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return common.Snapshot{}, fmt.Errorf("failed to read snapshot contents: %w", err)
	}
	return store.Decode(data)
}
