package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bogofit/internal/infra"
)

const defaultPresignExpiration = 15 * time.Minute

// S3Config describes an S3-compatible bucket (AWS S3, MinIO, R2, ...).
type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	PublicBaseURL     string
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// S3ConfigFrom maps the S3_* settings of cfg.
func S3ConfigFrom(cfg *infra.Config) S3Config {
	return S3Config{
		Endpoint:          cfg.S3Endpoint,
		Region:            cfg.S3Region,
		Bucket:            cfg.S3Bucket,
		AccessKey:         cfg.S3AccessKey,
		SecretKey:         cfg.S3SecretKey,
		PublicBaseURL:     cfg.S3PublicBaseURL,
		UsePathStyle:      cfg.S3UsePathStyle,
		PresignExpiration: cfg.S3PresignExpiration,
	}
}

// S3Store issues presigned uploads and stores engine outputs in a bucket.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	endpoint      string
	publicBaseURL string
	pathStyle     bool
	expiration    time.Duration
	logger        infra.Logger
}

// NewS3Store builds a store from static credentials.
func NewS3Store(ctx context.Context, cfg S3Config, logger *infra.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("storage: s3 credentials are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("storage: invalid s3 endpoint: %w", err)
		}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	expiration := cfg.PresignExpiration
	if expiration <= 0 {
		expiration = defaultPresignExpiration
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		pathStyle:     cfg.UsePathStyle,
		expiration:    expiration,
		logger:        infra.LoggerOrDiscard(logger).With().Str("component", "s3").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// PresignUpload signs a PUT for key. The caller uploads the bytes directly
// and then refers to the object by PublicURL.
func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string) (PresignedUpload, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return PresignedUpload{}, err
	}
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(cleanKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiration))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("storage: presign upload: %w", err)
	}
	return PresignedUpload{
		Key:         cleanKey,
		UploadURL:   req.URL,
		PublicURL:   s.PublicURL(cleanKey),
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(s.expiration).UTC(),
	}, nil
}

// Put uploads data under key and returns its public URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(cleanKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	s.logger.Debug().Str("key", cleanKey).Int("bytes", len(data)).Msg("storage: object stored")
	return s.PublicURL(cleanKey), nil
}

// PublicURL is the address readers use for key.
func (s *S3Store) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	if s.pathStyle {
		return s.endpoint + "/" + s.bucket + "/" + key
	}
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return s.endpoint + "/" + s.bucket + "/" + key
	}
	u.Host = s.bucket + "." + u.Host
	u.Path = "/" + key
	return u.String()
}
