package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// S3Config points the store at a bucket. Endpoint and UsePathStyle allow
// S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// S3API is the subset of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps documents as objects under a key prefix
type S3Store struct {
	client      S3API
	bucket      string
	prefix      string
	compression Compression
	logger      logging.Logger
}

// NewS3Store loads the default AWS configuration, overriding region and
// credentials when cfg sets them
func NewS3Store(ctx context.Context, cfg S3Config, c Compression, logger logging.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, c, logger), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client S3API, bucket, prefix string, c Compression, logger logging.Logger) *S3Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &S3Store{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		compression: c,
		logger:      logger,
	}
}

func (s *S3Store) key(stored string) string {
	if s.prefix == "" {
		return stored
	}
	return path.Join(s.prefix, stored)
}

// Put uploads v
func (s *S3Store) Put(ctx context.Context, name string, v any) error {
	data, stored, err := encode(name, v, s.compression)
	if err != nil {
		return err
	}

	contentType := "application/json"
	if stored != name {
		contentType = "application/x-snappy"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(stored)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", stored, err)
	}

	s.logger.Debug("snapshot uploaded",
		logging.String("bucket", s.bucket),
		logging.Path(s.key(stored)),
		logging.Int("bytes", len(data)))
	return nil
}

// Get downloads name into v
func (s *S3Store) Get(ctx context.Context, name string, v any) error {
	for _, stored := range candidates(name, s.compression) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(stored)),
		})
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", stored, err)
		}

		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", stored, err)
		}
		return decode(stored, data, v)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the logical names starting with prefix, sorted
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	root := ""
	if s.prefix != "" {
		root = s.prefix + "/"
	}

	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(root + prefix),
	})

	var stored []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			stored = append(stored, strings.TrimPrefix(aws.ToString(obj.Key), root))
		}
	}
	return logicalNames(stored, prefix), nil
}
