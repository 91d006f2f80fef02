// Package publish uploads round leaderboards to an S3-compatible bucket
// (AWS S3, Cloudflare R2, MinIO) as JSON for the league website.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/discroundup/roundup/internal/leaderboard"
	"github.com/discroundup/roundup/internal/scorecard"
)

// DefaultRegion is used when Config.Region is empty. R2 expects "auto".
const DefaultRegion = "auto"

// ErrNoBucket is returned by New when Config.Bucket is empty.
var ErrNoBucket = errors.New("publish: bucket is required")

// Config selects the bucket and endpoint. Credentials fall back to the AWS
// default chain when AccessKeyID is empty.
type Config struct {
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string
	// Endpoint overrides the S3 endpoint and switches to path-style
	// addressing, as R2 and MinIO require.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is where uploaded objects are served from, e.g. a CDN.
	// Empty means Endpoint/Bucket.
	PublicBaseURL string
}

// Publisher writes leaderboards to the bucket.
type Publisher struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
}

// New loads the AWS configuration and creates a publisher.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("publish: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
		}
		baseURL = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}

	return &Publisher{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Key is the object key of the leaderboard for date.
func (p *Publisher) Key(date string) string {
	return path.Join(p.prefix, "leaderboards", date+".json")
}

// PublishBoard uploads b under Key(b.Date), replacing any earlier upload,
// and returns its public URL.
func (p *Publisher) PublishBoard(ctx context.Context, b leaderboard.Board) (string, error) {
	if err := scorecard.ValidateDate(b.Date); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	body, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("publish: encode board: %w", err)
	}

	key := p.Key(b.Date)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("publish: upload %s: %w", key, err)
	}
	return p.baseURL + "/" + key, nil
}
