package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/config"
	"github.com/snarg/stt-engine/internal/transcribe"
)

// S3Archive stores transcript JSON in an S3-compatible object store.
type S3Archive struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	cfg           config.S3Config
	log           zerolog.Logger
}

// NewS3Archive creates an S3 transcript archive from config.
func NewS3Archive(cfg config.S3Config, log zerolog.Logger) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Archive{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		cfg:           cfg,
		log:           log.With().Str("component", "s3-archive").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (a *S3Archive) HeadBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &a.cfg.Bucket,
	})
	return err
}

func (a *S3Archive) Store(ctx context.Context, jobID string, res *transcribe.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return a.put(ctx, archiveKey(jobID, res.ProcessedAt), data)
}

func (a *S3Archive) put(ctx context.Context, key string, data []byte) error {
	objKey := a.objectKey(key)
	contentType := "application/json"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.cfg.Bucket,
		Key:         &objKey,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	return err
}

func (a *S3Archive) URL(ctx context.Context, key string) (string, error) {
	objKey := a.objectKey(key)
	req, err := a.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.cfg.Bucket,
		Key:    &objKey,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.cfg.PresignExpiry
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (a *S3Archive) Exists(ctx context.Context, key string) bool {
	objKey := a.objectKey(key)
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &a.cfg.Bucket,
		Key:    &objKey,
	})
	return err == nil
}

func (a *S3Archive) Type() string { return "s3" }

func (a *S3Archive) objectKey(key string) string {
	if a.cfg.Prefix != "" {
		return a.cfg.Prefix + "/transcripts/" + key
	}
	return "transcripts/" + key
}
