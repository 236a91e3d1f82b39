package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"gopkg.in/yaml.v3"
)

const s3Scheme = "s3://"

// Uploader is the part of the S3 API records need.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config selects the object store. Empty fields fall back to the AWS
// default configuration chain (environment, shared config files).
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// Writer stores records in local files or, for s3://bucket/key
// destinations, in an object store.
type Writer struct {
	// S3 is used for s3:// destinations. When nil it is created from
	// S3Config on first use.
	S3       Uploader
	S3Config S3Config
}

// Write stores rec at dest. The format follows the extension: .json
// writes JSON, anything else YAML.
func (w *Writer) Write(ctx context.Context, dest string, rec Record) error {
	if dest == "" {
		return fmt.Errorf("empty record destination")
	}

	if strings.HasPrefix(dest, s3Scheme) {
		bucket, key, err := parseS3URL(dest)
		if err != nil {
			return err
		}
		data, contentType, err := Encode(rec, path.Ext(key))
		if err != nil {
			return err
		}
		return w.upload(ctx, bucket, key, data, contentType)
	}

	data, _, err := Encode(rec, filepath.Ext(dest))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating record directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (w *Writer) upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if w.S3 == nil {
		c, err := NewS3Client(ctx, w.S3Config)
		if err != nil {
			return err
		}
		w.S3 = c
	}

	_, err := w.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to upload record to s3://%s/%s (%s): %w", bucket, key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("failed to upload record to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Encode serializes rec as JSON for a ".json" extension and YAML otherwise.
func Encode(rec Record, ext string) ([]byte, string, error) {
	switch strings.ToLower(ext) {
	case ".json":
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encoding record: %w", err)
		}
		return append(data, '\n'), "application/json", nil
	default:
		data, err := yaml.Marshal(rec)
		if err != nil {
			return nil, "", fmt.Errorf("encoding record: %w", err)
		}
		return data, "application/yaml", nil
	}
}

func parseS3URL(dest string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(dest, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 destination %q, want s3://bucket/key", dest)
	}
	return bucket, key, nil
}
