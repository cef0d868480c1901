package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 stores clips as objects in an S3 bucket. A clip is buffered in memory
// and uploaded in a single PutObject on commit.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 loads the default AWS credential chain.
func NewS3(ctx context.Context, bucket, prefix, region string) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3WithClient(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3) Open(ctx context.Context, name string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &s3Handle{ctx: ctx, s: s, key: s.key(name)}, nil
}

func (s *S3) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket s3://%s is not reachable: %w", s.bucket, err)
	}
	return nil
}

func (s *S3) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

func (s *S3) Close() error { return nil }

type s3Handle struct {
	ctx  context.Context
	s    *S3
	key  string
	buf  bytes.Buffer
	done bool
}

func (h *s3Handle) Write(p []byte) (int, error) {
	return h.buf.Write(p)
}

func (h *s3Handle) Close() error {
	if h.done {
		return nil
	}
	_, err := h.s.client.PutObject(h.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.s.bucket),
		Key:           aws.String(h.key),
		Body:          bytes.NewReader(h.buf.Bytes()),
		ContentLength: aws.Int64(int64(h.buf.Len())),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", h.key, err)
	}
	h.done = true
	return nil
}

func (h *s3Handle) Abort() error {
	h.done = true
	h.buf.Reset()
	return nil
}
