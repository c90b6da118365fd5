// Package s3mirror copies snapshot files to an S3-compatible bucket in the
// background.
package s3mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds explicit construction parameters. Empty credentials fall back
// to the default AWS credentials chain.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Environment variables:
//
//	RANCH_S3_BUCKET=<bucket> (required to enable mirroring)
//	RANCH_S3_REGION=<region> (default us-east-1)
//	RANCH_S3_ENDPOINT=<url> (optional, for MinIO/R2)
//	RANCH_S3_PATH_STYLE=true|false
//	RANCH_S3_ACCESS_KEY_ID / RANCH_S3_SECRET_ACCESS_KEY (optional)
//	RANCH_S3_PREFIX=<key prefix>
func ConfigFromEnv() (Config, bool) {
	bucket := strings.TrimSpace(os.Getenv("RANCH_S3_BUCKET"))
	if bucket == "" {
		return Config{}, false
	}
	return Config{
		Bucket:          bucket,
		Region:          strings.TrimSpace(os.Getenv("RANCH_S3_REGION")),
		Endpoint:        strings.TrimSpace(os.Getenv("RANCH_S3_ENDPOINT")),
		PathStyle:       strings.EqualFold(os.Getenv("RANCH_S3_PATH_STYLE"), "true"),
		AccessKeyID:     strings.TrimSpace(os.Getenv("RANCH_S3_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("RANCH_S3_SECRET_ACCESS_KEY")),
		Prefix:          strings.TrimSpace(os.Getenv("RANCH_S3_PREFIX")),
	}, true
}

type putAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Client struct {
	api    putAPI
	bucket string
}

func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &Client{api: client, bucket: cfg.Bucket}, nil
}

func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	objectKey = normalizeObjectKey(objectKey)
	if objectKey == "" {
		return fmt.Errorf("empty object key")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is directory: %s", localPath)
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String("application/zstd"),
	})
	if err != nil {
		return fmt.Errorf("s3 put key=%s: %w", objectKey, err)
	}
	return nil
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ""
	}
	clean := path.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}
