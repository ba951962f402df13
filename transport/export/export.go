// Package export delivers outbox items as objects in S3 or an S3-compatible
// store.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/transport"
)

// permanentCodes are S3 error codes no retry can fix.
var permanentCodes = map[string]bool{
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"EntityTooLarge":        true,
	"KeyTooLongError":       true,
}

// Payload is the export item payload. Body is base64 in JSON.
type Payload struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key" validate:"required,max=900"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Transport writes export items with PutObject.
type Transport struct {
	client *awss3.Client
	cfg    Config
}

// New creates an export transport.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// The delivery engine owns retries and backoff.
		o.RetryMaxAttempts = 1
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		} else if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return &Transport{client: client, cfg: cfg}, nil
}

// Deliver uploads the payload body.
func (t *Transport) Deliver(ctx context.Context, item *outbox.Item) error {
	var p Payload
	if err := transport.DecodePayload(item, &p); err != nil {
		return err
	}
	bucket := p.Bucket
	if bucket == "" {
		bucket = t.cfg.Bucket
	}
	if bucket == "" {
		return resilience.Permanent(errors.New("export: no bucket in payload or config"))
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := t.cfg.KeyPrefix + p.Key

	_, err := t.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(p.Body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"tenant-id": item.TenantID,
			"outbox-id": item.ID,
		},
	})
	if err != nil {
		return classify(fmt.Errorf("export: put s3://%s/%s: %w", bucket, key, err))
	}
	return nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
		return resilience.Permanent(err)
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && resilience.IsPermanent(transport.ClassifyHTTP(respErr.HTTPStatusCode(), nil)) {
		return resilience.Permanent(err)
	}
	return resilience.Retryable(err)
}
