// Package archive persists raw file deltas to object storage so an
// operator can audit or replay exactly what the pipeline ingested.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds archiver configuration.
type Config struct {
	Bucket       string          `yaml:"bucket"`
	Region       string          `yaml:"region"`
	Prefix       string          `yaml:"prefix,omitempty"`
	StorageClass string          `yaml:"storage_class,omitempty"`
	Compression  CompressionType `yaml:"compression,omitempty"`
	Endpoint     string          `yaml:"endpoint,omitempty"`
	UsePathStyle bool            `yaml:"use_path_style,omitempty"`
}

// S3Archiver uploads one object per ingested delta.
type S3Archiver struct {
	config     Config
	client     *s3.Client
	compressor Compressor
}

// NewS3Archiver creates an archiver.
func NewS3Archiver(ctx context.Context, config Config) (*S3Archiver, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Prefix == "" {
		config.Prefix = "deltas"
	}
	if config.StorageClass == "" {
		config.StorageClass = "STANDARD"
	}

	compressor, err := NewCompressor(config.Compression)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if config.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return &S3Archiver{
		config:     config,
		client:     s3.NewFromConfig(awsCfg, opts...),
		compressor: compressor,
	}, nil
}

// Store uploads one delta. Keys are laid out per service and day so replay
// tooling can list a bounded range.
func (a *S3Archiver) Store(ctx context.Context, serviceID, sourceFile string, content []byte, at time.Time) error {
	if len(content) == 0 {
		return nil
	}

	payload, err := a.compressor.Compress(content)
	if err != nil {
		return fmt.Errorf("compress delta: %w", err)
	}

	key := path.Join(
		a.config.Prefix,
		serviceID,
		at.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s-%d.log%s", sanitize(sourceFile), at.UnixNano(), a.compressor.Extension()),
	)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(a.config.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(payload),
		ContentType:  aws.String("application/octet-stream"),
		StorageClass: s3types.StorageClass(a.config.StorageClass),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func sanitize(sourceFile string) string {
	base := path.Base(sourceFile)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
