// Package storage persists extracted chunk artifacts in S3. Each object
// carries user metadata identifying the book it belongs to, which is what
// the deletion sweep matches on.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// Metadata keys attached to uploaded chunk artifacts. S3 lowercases user
// metadata keys on storage, so they are declared lowercase here.
const (
	MetaBookID     = "book-id"
	MetaBookName   = "book-name"
	MetaAuthorName = "author-name"
)

const headConcurrency = 8

// Config holds S3 connection settings.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
}

// Store reads and writes chunk artifacts in one bucket.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("aws credentials not set")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region not set")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
	}, nil
}

// UploadChunk writes one artifact and returns its public URL.
func (s *Store) UploadChunk(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}
	if _, err := s.uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	return url, nil
}

// ObjectInfo describes one stored object and its user metadata.
type ObjectInfo struct {
	Key  string
	Meta map[string]string
}

// ListFiles returns every object in the bucket along with its metadata.
// Metadata requires a HeadObject per key, so those run concurrently with a
// fixed limit.
func (s *Store) ListFiles(ctx context.Context) ([]ObjectInfo, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	infos := make([]ObjectInfo, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			head, err := s.client.HeadObject(gctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return fmt.Errorf("head %s: %w", key, err)
			}
			infos[i] = ObjectInfo{Key: key, Meta: head.Metadata}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// DeleteFile removes one object. Deleting a missing key succeeds, so
// repeated purges are safe.
func (s *Store) DeleteFile(ctx context.Context, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
