package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"stash/internal/backend"
)

// S3Config selects an S3-compatible bucket. Logical buckets become key
// prefixes inside Bucket.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	TempDir         string
}

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// S3 stores blobs as objects keyed <bucket>/<id>.
type S3 struct {
	api     objectAPI
	bucket  string
	buckets Buckets
	tempDir string
}

// NewS3 builds an S3 blob store from static credentials.
func NewS3(ctx context.Context, cfg S3Config, buckets Buckets) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3WithAPI(client, cfg.Bucket, buckets, cfg.TempDir), nil
}

func newS3WithAPI(api objectAPI, bucket string, buckets Buckets, tempDir string) *S3 {
	return &S3{api: api, bucket: bucket, buckets: buckets, tempDir: tempDir}
}

// UploadBlob spools r to a temp file so the object can be sent with a known
// length, then puts it. Existing ids are not overwritten.
func (s *S3) UploadBlob(ctx context.Context, bucket, id, name string, r io.Reader) (backend.BlobInfo, error) {
	var zero backend.BlobInfo
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	key, err := s.key(bucket, id)
	if err != nil {
		return zero, err
	}

	_, err = s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return zero, fmt.Errorf("%w: blob %s/%s", backend.ErrConflict, bucket, id)
	}
	if !isNotFound(err) {
		return zero, fmt.Errorf("head object: %w", err)
	}

	tmp, err := os.CreateTemp(s.tempDir, "s3-put-*")
	if err != nil {
		return zero, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), contextReader{ctx: ctx, r: r})
	if err != nil {
		return zero, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return zero, err
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(n),
		Metadata:      map[string]string{"name": name},
	})
	if err != nil {
		return zero, fmt.Errorf("put object: %w", err)
	}

	return backend.BlobInfo{ID: id, Name: name, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// OpenBlob streams one object or returns backend.ErrNotFound.
func (s *S3) OpenBlob(ctx context.Context, bucket, id string) (io.ReadCloser, error) {
	key, err := s.key(bucket, id)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: blob %s/%s", backend.ErrNotFound, bucket, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

// DeleteBlob removes one object. Missing objects are ignored.
func (s *S3) DeleteBlob(ctx context.Context, bucket, id string) error {
	key, err := s.key(bucket, id)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3) key(bucket, id string) (string, error) {
	if err := s.buckets.check(bucket); err != nil {
		return "", err
	}
	if err := checkBlobID(id); err != nil {
		return "", err
	}
	return bucket + "/" + id, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
