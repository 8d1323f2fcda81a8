package filestore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"groupchat-service/internal/config"
)

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps attachments in an S3-compatible bucket.
type S3Store struct {
	client    objectAPI
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewS3Store builds a client for cfg. Static credentials are used when an
// access key is configured, otherwise the default AWS chain applies.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.PublicURL), nil
}

func newS3Store(client objectAPI, bucket, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		now:       time.Now,
	}
}

func (s *S3Store) Save(ctx context.Context, r io.Reader, filename, category string) (string, error) {
	key := objectKey(category, filename, s.now())

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.reference(key), nil
}

// Delete removes the object behind reference. References outside category
// are ignored and reported as false.
func (s *S3Store) Delete(ctx context.Context, reference, category string) (bool, error) {
	key := s.keyOf(reference)
	if key == "" || !strings.HasPrefix(key, category+"/") {
		return false, nil
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) reference(key string) string {
	if s.publicURL == "" {
		return key
	}
	return s.publicURL + "/" + key
}

func (s *S3Store) keyOf(reference string) string {
	if s.publicURL != "" {
		reference = strings.TrimPrefix(reference, s.publicURL+"/")
	}
	return strings.TrimPrefix(reference, "/")
}

// objectKey lays attachments out as category/yyyy/mm/dd/uuid.ext.
func objectKey(category, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s%s", category, now.Year(), now.Month(), now.Day(), uuid.New(), ext)
}
