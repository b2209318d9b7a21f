package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote portal data. HTTPFetcher is the only production
// implementation; tests substitute stubs.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches the URL unless the server still holds the
	// given ETag. Returns (body, newETag, changed, error); on a 304 the
	// body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
