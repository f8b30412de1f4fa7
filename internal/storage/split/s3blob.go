package split

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/scan-io-git/cloudsentinel/internal/storage"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

// S3Blobs keeps bodies as objects under a prefix of one bucket, encrypted with SSE-S3.
type S3Blobs struct {
	client s3iface.S3API
	bucket string
	prefix string
}

var _ BlobStore = (*S3Blobs)(nil)

func NewS3Blobs(client s3iface.S3API, bucket, prefix string) *S3Blobs {
	return &S3Blobs{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Blobs) Name() string { return "s3" }

func (b *S3Blobs) Put(ctx context.Context, name string, body []byte) (string, error) {
	key := path.Join(b.prefix, name)
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put s3://%s/%s: %w", b.bucket, key, err)
	}
	return key, nil
}

func (b *S3Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if sentinelerrors.IsAWSErrorCode(err, s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", b.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, key, err)
	}
	return data, nil
}

func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}
