// Package gcs implements the archive provider on Google Cloud Storage.
// Authentication uses Application Default Credentials.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Provider uploads artifacts to one GCS bucket.
type Provider struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New initializes a GCS client and verifies bucket access, failing fast on
// bad configuration.
func New(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}
	return &Provider{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Save uploads data to the bucket under the configured prefix.
func (p *Provider) Save(ctx context.Context, objectName string, data []byte) error {
	name := objectName
	if p.prefix != "" {
		name = strings.TrimSuffix(p.prefix, "/") + "/" + objectName
	}
	wc := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			p.logger.Warn("close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write GCS object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize GCS object %s: %w", name, err)
	}
	return nil
}

// Close releases the GCS client.
func (p *Provider) Close() error {
	return p.client.Close()
}
