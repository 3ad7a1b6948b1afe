package contractstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/taple-mesh/node/pkg/digest"
)

// s3Client is the subset of *s3.Client used here, so tests can substitute a
// fake.
type s3Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3BlobConfig configures the remote offload store.
type S3BlobConfig struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO/LocalStack
	Prefix   string
	// InlineThreshold is the artifact size, in bytes, above which Put
	// offloads the blob to S3 and stores only a pointer in the inner
	// Store. Artifacts at or below the threshold pass through
	// unmodified. A threshold of zero or less disables offloading: every
	// artifact passes through.
	InlineThreshold int
}

// S3BlobStore decorates a Store, offloading large artifact blobs to S3 and
// leaving only a content-hash pointer in the wrapped Store's row. This
// mirrors the node's broader pattern of small metadata in SQL, large blobs
// in object storage.
type S3BlobStore struct {
	inner  Store
	client s3Client
	cfg    S3BlobConfig
}

// NewS3BlobStore builds an S3BlobStore wrapping inner.
func NewS3BlobStore(ctx context.Context, inner Store, cfg S3BlobConfig) (*S3BlobStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("contractstore: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3BlobStore{inner: inner, client: client, cfg: cfg}, nil
}

const blobPointerPrefix = "s3blob:"

func (s *S3BlobStore) key(hash digest.Digest) string {
	return s.cfg.Prefix + hash.Hex() + ".blob"
}

// Get implements Store, resolving an offloaded pointer back to its bytes.
func (s *S3BlobStore) Get(ctx context.Context, key Key) (Entry, error) {
	entry, err := s.inner.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	return s.resolve(ctx, entry)
}

// GetGovernance implements Store.
func (s *S3BlobStore) GetGovernance(ctx context.Context) (Entry, error) {
	entry, err := s.inner.GetGovernance(ctx)
	if err != nil {
		return Entry{}, err
	}
	return s.resolve(ctx, entry)
}

func (s *S3BlobStore) resolve(ctx context.Context, entry Entry) (Entry, error) {
	if len(entry.Artifact) < len(blobPointerPrefix) || string(entry.Artifact[:len(blobPointerPrefix)]) != blobPointerPrefix {
		return entry, nil
	}
	hash, err := digest.Parse(string(entry.Artifact[len(blobPointerPrefix):]))
	if err != nil {
		return Entry{}, fmt.Errorf("contractstore: corrupt s3 pointer: %w", err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("contractstore: s3 get failed: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("contractstore: reading s3 object: %w", err)
	}
	entry.Artifact = blob
	return entry, nil
}

// Put implements Store, offloading entry.Artifact to S3 when it exceeds the
// configured inline threshold.
func (s *S3BlobStore) Put(ctx context.Context, key Key, entry Entry) error {
	return s.store(ctx, key, entry, s.inner.Put)
}

// PutGovernance implements Store.
func (s *S3BlobStore) PutGovernance(ctx context.Context, entry Entry) error {
	return s.store(ctx, Key{}, entry, func(ctx context.Context, _ Key, e Entry) error {
		return s.inner.PutGovernance(ctx, e)
	})
}

func (s *S3BlobStore) store(ctx context.Context, key Key, entry Entry, write func(context.Context, Key, Entry) error) error {
	if s.cfg.InlineThreshold <= 0 || len(entry.Artifact) <= s.cfg.InlineThreshold {
		return write(ctx, key, entry)
	}

	hash := digest.Of(entry.Artifact)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.key(hash)),
		Body:        bytes.NewReader(entry.Artifact),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("contractstore: s3 put failed: %w", err)
	}

	pointerEntry := entry
	pointerEntry.Artifact = []byte(blobPointerPrefix + hash.Hex())
	return write(ctx, key, pointerEntry)
}
