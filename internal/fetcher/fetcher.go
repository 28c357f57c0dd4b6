// Package fetcher downloads and parses remote feed data. It covers the
// transports and formats the financial record feeds are published in:
// HTTP and FTP on the wire, CSV, XLSX, and ZIP on disk.
package fetcher

import (
	"context"
	"io"
)

// Fetcher moves feed bytes from a remote to the caller. The Stream
// functions in this package turn the downloaded files into rows.
type Fetcher interface {
	// Download returns the response body for the caller to consume and close.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the remote file to path, reporting bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches conditionally against a stored ETag.
	// When the remote is unchanged it returns (nil, etag, false, nil).
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
