package s3client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appConfig "precache/config"
	"precache/internal/fetch"
)

// API is the part of the S3 client the source needs.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Client struct {
	api API
}

func New(ctx context.Context, cfg appConfig.S3) (*Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return NewWithAPI(s3Client), nil
}

func NewWithAPI(api API) *Client {
	return &Client{api: api}
}

// SplitLocation turns s3://bucket/key into its bucket and key.
func SplitLocation(target string) (string, string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse %s: %w", target, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 location: %s", target)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key in %s", target)
	}
	return u.Host, key, nil
}

// Open streams one object. Service errors that carry an HTTP status become
// *fetch.StatusError so a missing object fails like a missing HTTP file.
func (c *Client) Open(ctx context.Context, target string) (*fetch.Body, error) {
	bucket, key, err := SplitLocation(target)
	if err != nil {
		return nil, err
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, &fetch.StatusError{URL: target, StatusCode: http.StatusNotFound}
		}
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return nil, &fetch.StatusError{URL: target, StatusCode: respErr.HTTPStatusCode()}
		}
		return nil, fmt.Errorf("failed to get object %s: %w", target, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	slog.Debug("s3 object opened", "bucket", bucket, "key", key, "size", size)

	return &fetch.Body{ReadCloser: out.Body, Size: size}, nil
}

// Lazy builds the client on first use so runs without s3 locators never
// touch AWS configuration.
func Lazy(cfg appConfig.S3) fetch.Source {
	var (
		once   sync.Once
		client *Client
		err    error
	)
	return fetch.SourceFunc(func(ctx context.Context, target string) (*fetch.Body, error) {
		once.Do(func() {
			client, err = New(ctx, cfg)
		})
		if err != nil {
			return nil, err
		}
		return client.Open(ctx, target)
	})
}
