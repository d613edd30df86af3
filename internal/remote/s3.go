package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/dukerupert/famlingo/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Key       string
}

// Configured reports whether the bucket and credentials are all set.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3 stores the snapshot as one object. The revision is the object ETag and
// writes use If-Match / If-None-Match preconditions.
type S3 struct {
	bucket string
	key    string
	client s3Client
}

func NewS3(cfg S3Config) *S3 {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Key == "" {
		cfg.Key = model.DefaultSyncFilePath
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3{bucket: cfg.Bucket, key: cfg.Key, client: s3.New(opts)}
}

// S3Factory builds an S3 store. When cfg.Key is empty the object key comes
// from the device's sync file path.
func S3Factory(cfg S3Config) Factory {
	return func(settings *model.SyncSettings) (Store, error) {
		if !cfg.Configured() {
			return nil, model.ErrNotConfigured
		}
		c := cfg
		if c.Key == "" && settings != nil {
			c.Key = settings.Path()
		}
		return NewS3(c), nil
	}
}

func (s *S3) Fetch(ctx context.Context) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, classifyS3("get object", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %v: %w", err, model.ErrTransient)
	}
	return &Object{Content: content, Revision: aws.ToString(out.ETag)}, nil
}

func (s *S3) Write(ctx context.Context, content []byte, revision, message string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String("application/json"),
		Metadata:      map[string]string{"message": message},
	}
	if revision == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(revision)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", classifyS3("put object", err)
	}
	return aws.ToString(out.ETag), nil
}

func classifyS3(op string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %v: %w", op, err, model.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrNotFound)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrConflict)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrUnauthorized)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrNotFound)
		case status == http.StatusPreconditionFailed, status == http.StatusConflict:
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrConflict)
		case status >= 500:
			return fmt.Errorf("%s: %v: %w", op, err, model.ErrTransient)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// No HTTP response at all.
	return fmt.Errorf("%s: %v: %w", op, err, model.ErrTransient)
}
