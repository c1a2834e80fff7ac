package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/PS-Soundwave/virtu/internal/config"
	"github.com/PS-Soundwave/virtu/internal/logging"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store stores media in an S3-compatible bucket.
type S3Store struct {
	uploader   uploader
	bucket     string
	baseURL    string
	publicRead bool
}

var _ Store = (*S3Store)(nil)

// NewS3Store configures a multipart uploader for the bucket in cfg. A custom
// endpoint (MinIO, R2) switches the client to path-style addressing.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return newS3Store(up, cfg), nil
}

func newS3Store(up uploader, cfg config.ObjectStoreConfig) *S3Store {
	return &S3Store{
		uploader:   up,
		bucket:     cfg.Bucket,
		baseURL:    cfg.PublicBaseURL,
		publicRead: cfg.PublicReadACL,
	}
}

// Put uploads r under a fresh key. A failed or cancelled upload aborts the
// multipart upload so no partial object remains.
func (s *S3Store) Put(ctx context.Context, r io.Reader, contentType string) (string, error) {
	key := NewKey(contentType)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if s.publicRead {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}

	logging.FromContext(ctx).Debug("stored object", "bucket", s.bucket, "key", key)
	return key, nil
}

func (s *S3Store) PublicURL(key string) string {
	return publicURL(s.baseURL, key)
}
