// Package remotestore uploads rendered artifacts to the user's disk storage
// through its REST API: resolve an upload href for the destination path,
// then PUT the file bytes to it.
package remotestore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

const maxUploadRetries = 3

// DiskClient talks to the disk-storage API with a per-user OAuth credential.
type DiskClient struct {
	http *resty.Client
}

// NewDiskClient creates a client against the given API base URL.
func NewDiskClient(baseURL string, timeout time.Duration) *DiskClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &DiskClient{http: client}
}

type uploadHref struct {
	Href string `json:"href"`
}

// Upload stores the local file at remotePath, overwriting any previous
// version. Transient failures are retried with exponential backoff; a final
// failure is returned so the caller can fall back to inline delivery.
func (c *DiskClient) Upload(ctx context.Context, token, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	attempt := func() error {
		return c.uploadOnce(ctx, token, data, remotePath)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxUploadRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	return nil
}

func (c *DiskClient) uploadOnce(ctx context.Context, token string, data []byte, remotePath string) error {
	var href uploadHref
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "OAuth "+token).
		SetQueryParams(map[string]string{
			"path":      remotePath,
			"overwrite": "true",
		}).
		SetResult(&href).
		Get("/resources/upload")
	if err != nil {
		return fmt.Errorf("resolve upload href: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		err := fmt.Errorf("resolve upload href: status %d", resp.StatusCode())
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			// Bad credential will not heal by retrying.
			return backoff.Permanent(err)
		}
		return err
	}
	if href.Href == "" {
		return backoff.Permanent(fmt.Errorf("resolve upload href: empty href"))
	}

	put, err := c.http.R().
		SetContext(ctx).
		SetBody(data).
		Put(href.Href)
	if err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	if put.StatusCode() < 200 || put.StatusCode() >= 300 {
		return fmt.Errorf("put artifact: status %d", put.StatusCode())
	}
	return nil
}
