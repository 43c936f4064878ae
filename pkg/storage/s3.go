// Package storage implements the blob store the pipeline reads inputs from
// and writes tiles to: S3 (or MinIO) for deployed runs, a directory for
// local ones.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// MinioConfig locates the buckets. Endpoint is optional; when empty the
// default AWS resolution applies.
type MinioConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	RawBucket    string `mapstructure:"raw_bucket"`
	ResultBucket string `mapstructure:"result_bucket"`
}

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store reads raw uploads from one bucket and writes results to another.
type S3Store struct {
	client       objectAPI
	rawBucket    string
	resultBucket string
	log          *zap.SugaredLogger
}

// NewS3Store builds a client from cfg.
func NewS3Store(ctx context.Context, cfg MinioConfig) (*S3Store, error) {
	if cfg.RawBucket == "" || cfg.ResultBucket == "" {
		return nil, errors.New("raw and result buckets must be set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO serves buckets by path, not by virtual host.
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.RawBucket, cfg.ResultBucket), nil
}

func newS3Store(client objectAPI, rawBucket, resultBucket string) *S3Store {
	return &S3Store{
		client:       client,
		rawBucket:    rawBucket,
		resultBucket: resultBucket,
		log:          logger.ComponentLogger("storage.s3"),
	}
}

// EnsureBuckets creates the raw and result buckets when they are missing.
func (s *S3Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.resultBucket} {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err == nil {
			continue
		}
		if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return errors.Wrapf(err, "create bucket %s", bucket)
		}
		s.log.Infow("Created bucket", logger.FieldBucket, bucket)
	}
	return nil
}

// Resolve implements pipeline.Resolver against the raw bucket.
func (s *S3Store) Resolve(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.rawBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(pipeline.ErrNotFound, "s3://%s/%s", s.rawBucket, key)
		}
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.rawBucket, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read s3://%s/%s", s.rawBucket, key)
	}
	return data, nil
}

// Store implements pipeline.Sink against the result bucket. Existing
// objects are overwritten, so a retried run replaces its earlier output.
func (s *S3Store) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := s.put(ctx, s.resultBucket, key, data, contentType); err != nil {
		return "", errors.Wrap(pipeline.ErrSinkWrite, err.Error())
	}
	return Location(s.resultBucket, key), nil
}

// Upload stores a raw input for a later run.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return s.put(ctx, s.rawBucket, key, data, contentType)
}

func (s *S3Store) put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return errors.Wrapf(err, "put s3://%s/%s", bucket, key)
	}
	s.log.Debugw("Uploaded object", logger.FieldBucket, bucket, logger.FieldKey, key, logger.FieldSize, len(data))
	return nil
}

// RawKey is where an uploaded input named name is kept for runID:
// "{runID}/{name}".
func RawKey(runID, name string) string {
	return runID + "/" + filepath.Base(name)
}

// Location formats an object location as stored in the ledger.
func Location(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
