package objectclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	cfg "github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/core"
)

// ErrNotConfigured means no bucket credentials were supplied. Callers treat
// object storage as optional.
var ErrNotConfigured = errors.New("object storage not configured")

type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
	bucket   string
	endpoint *url.URL // nil for AWS S3
}

// NewS3Client connects to AWS S3, or to any S3-compatible service such as
// DigitalOcean Spaces when SPACES_ENDPOINT is set.
func NewS3Client(ctx context.Context, cfg *cfg.Config, logger *zap.Logger) (*S3Client, error) {
	if cfg.SpacesKey == "" || cfg.SpacesSecret == "" || cfg.SpacesBucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.SpacesRegion == "" {
		return nil, fmt.Errorf("SPACES_REGION not set")
	}

	var endpoint *url.URL
	if cfg.SpacesEndpoint != "" {
		raw := cfg.SpacesEndpoint
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid SPACES_ENDPOINT %q", cfg.SpacesEndpoint)
		}
		endpoint = u
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.SpacesRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SpacesKey, cfg.SpacesSecret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = aws.String(endpoint.String())
		}
	})
	if logger != nil {
		logger.Info("object storage ready", zap.String("bucket", cfg.SpacesBucket), zap.String("region", cfg.SpacesRegion))
	}

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   cfg.SpacesRegion,
		bucket:   cfg.SpacesBucket,
		endpoint: endpoint,
	}, nil
}

// UploadFile stores data publicly readable under key and returns its URL.
func (c *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := c.uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return c.publicURL(key), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func (c *S3Client) publicURL(key string) string {
	return PublicURL(c.bucket, c.region, c.endpoint, key)
}

// PublicURL is the virtual-hosted URL of key.
func PublicURL(bucket, region string, endpoint *url.URL, key string) string {
	if endpoint == nil {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
	}
	return fmt.Sprintf("https://%s.%s/%s", bucket, endpoint.Host, key)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds <folder>/<documentID>/<filename> with the filename reduced
// to characters every S3 implementation accepts.
func ObjectKey(folder, documentID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "document.pdf"
	}
	return path.Join(strings.Trim(folder, "/"), documentID, name)
}

var _ core.ObjectClient = (*S3Client)(nil)
