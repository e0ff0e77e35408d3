package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the part of the S3 client used by the S3 backend.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3API = (*s3.Client)(nil)

// NewS3Backend stores documents in bucket, with prefix prepended to every
// key.
func NewS3Backend(client S3API, bucket, prefix string) Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &s3Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

var _ Backend = (*s3Backend)(nil)

type s3Backend struct {
	client S3API
	bucket string
	prefix string
}

// Get implements Backend.
func (s *s3Backend) Get(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + path),
	})
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("unhandled error: %w", err)
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// Set implements Backend.
func (s *s3Backend) Set(ctx context.Context, path string, content []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unhandled error: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (s *s3Backend) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + path),
	})
	if err != nil {
		return fmt.Errorf("unhandled error: %w", err)
	}
	return nil
}

// Match implements Backend.
func (s *s3Backend) Match(ctx context.Context, req MatchRequest) ([]string, error) {
	compiled, err := req.compile()
	if err != nil {
		return nil, err
	}

	var out []string
	var continuationToken *string
	for {
		result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			ContinuationToken: continuationToken,
			Prefix:            aws.String(s.prefix + req.Prefix),
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range result.Contents {
			p := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if compiled.matches(p) {
				out = append(out, p)
			}
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	sort.Strings(out)
	return out, nil
}
