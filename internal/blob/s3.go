// Package blob writes backup objects to S3 or a Google Cloud Storage bucket.
package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of *s3.Client the writer uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	Client ObjectPutter
	Bucket string
}

// NewS3 loads credentials from the default AWS chain.
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket}, nil
}

func (w *S3) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := w.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", w.Bucket, key, err)
	}
	return nil
}

func (w *S3) Location(key string) string {
	return "s3://" + w.Bucket + "/" + key
}
