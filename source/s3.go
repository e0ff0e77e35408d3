package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/upload"
)

// S3API is the part of *s3.Client used to read a prefix.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		EndpointResolverV2: s3.NewDefaultEndpointResolverV2(),
		Region:             cfg.Region,
		UsePathStyle:       cfg.Endpoint != "",
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// FromS3 reads every object under prefix. Paths are relative to prefix.
func FromS3(ctx context.Context, client S3API, bucket, prefix string, opts Options) ([]upload.FileEntry, error) {
	f, err := newFilter(opts)
	if err != nil {
		return nil, err
	}

	var keys []string
	var continuationToken *string
	for {
		result, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: continuationToken,
			Prefix:            aws.String(prefix),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range result.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
			if rel == "" || f.excluded(rel) {
				continue
			}
			if err := f.checkSize(rel, aws.ToInt64(obj.Size)); err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	var out []upload.FileEntry
	for _, key := range keys {
		content, err := getObject(ctx, client, bucket, key)
		if err != nil {
			return nil, err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
		out = append(out, upload.FileEntry{Path: rel, Content: content})
	}

	sortEntries(out)
	log.Debug("Collected files from S3", "bucket", bucket, "prefix", prefix, "files", len(out))
	return out, nil
}

func getObject(ctx context.Context, client S3API, bucket, key string) ([]byte, error) {
	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return nil, fmt.Errorf("object s3://%s/%s disappeared while reading", bucket, key)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}
