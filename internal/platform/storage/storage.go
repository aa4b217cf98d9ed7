package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hrbenefits/internal/platform/config"
)

// ObjectStore persists generated statements and returns their location.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// New returns an S3 store when STATEMENTS_BUCKET is set, else a local directory store.
func New(ctx context.Context, cfg config.Config) (ObjectStore, error) {
	if cfg.StatementsBucket == "" {
		return NewLocal(cfg.StatementsDir), nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3(s3.NewFromConfig(awsCfg), cfg.StatementsBucket), nil
}

type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// PutObjectAPI is the subset of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	client PutObjectAPI
	bucket string
}

func NewS3(client PutObjectAPI, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(clean),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", clean, err)
	}
	return "s3://" + s.bucket + "/" + clean, nil
}

func cleanKey(key string) (string, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, nil
}
