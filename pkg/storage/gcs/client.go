// Package gcs reads product files from Cloud Storage over the JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

const (
	readOnlyScope   = "https://www.googleapis.com/auth/devstorage.read_only"
	defaultEndpoint = "https://storage.googleapis.com"
	pingTimeout     = 5 * time.Second
	errBodyLimit    = 2048
)

var (
	ErrObjectNotFound = errors.New("gcs: object not found")
	errNotInitialized = errors.New("gcs: client not initialized")
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Client issues authenticated JSON API requests. A custom endpoint (an
// emulator) is reached without credentials.
type Client struct {
	http     *http.Client
	endpoint string
	bucket   string
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	c := &Client{endpoint: defaultEndpoint, bucket: bucket}
	if ep := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); ep != "" {
		c.endpoint, c.http = ep, &http.Client{}
	} else {
		ts, err := tokenSource(ctx, gcp)
		if err != nil {
			return nil, err
		}
		// No overall timeout: downloads stream for as long as the caller reads.
		c.http = oauth2.NewClient(context.Background(), ts)
	}

	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs: health check: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"bucket": bucket, "endpoint": c.endpoint}), "gcs.ready")
	}
	return c, nil
}

// tokenSource prefers inline JSON, then a credentials file, then the ambient
// application default credentials.
func tokenSource(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	raw := []byte(strings.TrimSpace(gcp.CredentialsJSON))
	if len(raw) == 0 && gcp.ApplicationCredentials != "" {
		b, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("gcs: read credentials file: %w", err)
		}
		raw = b
	}
	if len(raw) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, raw, readOnlyScope)
		if err != nil {
			return nil, fmt.Errorf("gcs: parse credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, readOnlyScope)
	if err != nil {
		return nil, fmt.Errorf("gcs: default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func (c *Client) objectsURL(bucket string) string {
	return c.endpoint + "/storage/v1/b/" + url.PathEscape(bucket) + "/o"
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Ping lists at most one object to prove the bucket is readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.get(ctx, c.objectsURL(c.bucket)+"?maxResults=1&fields=kind")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return responseError("bucket "+c.bucket, resp)
	}
	return nil
}

func (c *Client) Close() error { return nil }

// Object is an open object stream plus the metadata GCS reported for it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Open streams bucket/key; an empty bucket means the configured one. The
// caller closes Body.
func (c *Client) Open(ctx context.Context, bucket, key string) (*Object, error) {
	if c == nil || c.http == nil {
		return nil, errNotInitialized
	}
	if bucket == "" {
		bucket = c.bucket
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("gcs: object key is required")
	}

	resp, err := c.get(ctx, c.objectsURL(bucket)+"/"+url.PathEscape(key)+"?alt=media")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return &Object{Body: resp.Body, ContentType: resp.Header.Get("Content-Type"), Size: resp.ContentLength}, nil
	}

	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return nil, responseError("object "+key, resp)
}

// BucketHandle scopes reads to name, or the configured bucket when empty.
func (c *Client) BucketHandle(name string) *Bucket {
	if c == nil {
		return nil
	}
	if name == "" {
		name = c.bucket
	}
	return &Bucket{name: name, client: c}
}

type Bucket struct {
	name   string
	client *Client
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Open(ctx context.Context, key string) (*Object, error) {
	return b.client.Open(ctx, b.name, key)
}

func responseError(what string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("gcs: %s: %s: %s", what, resp.Status, msg)
	}
	return fmt.Errorf("gcs: %s: %s", what, resp.Status)
}
