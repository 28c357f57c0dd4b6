package dataset

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/config"
	"github.com/sells-group/insight-engine/internal/db"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

const (
	awardsTable     = "fin_data.award_records"
	awardsBatchSize = 10000
)

// awardColumns is the load order for fin_data.award_records.
var awardColumns = []string{
	"awardid", "recipientname", "recipientaddress", "recipientcity",
	"recipientstate", "recipientzip", "awardamount", "disbursedamount",
	"jobsreported", "dateawarded", "awardstatus", "businesstype",
	"naicscode", "program",
}

// Awards implements the financial award records feed that backs the tiered
// recipient matcher. Publishers rotate between HTTP and FTP drops and
// between CSV and XLSX formats, so the feed dispatches on URL scheme and
// file extension. HTTP drops carry ETags; an unchanged ETag short-circuits
// the whole sync.
type Awards struct {
	feedURL string
	ftp     *fetcher.FTPFetcher
}

// NewAwards creates the awards feed from config. FeedURL wins when set;
// otherwise an FTP URL is assembled from the ftp_host and ftp_path keys.
func NewAwards(cfg config.DatasetConfig) *Awards {
	feedURL := cfg.FeedURL
	if feedURL == "" && cfg.FTPHost != "" {
		feedURL = "ftp://" + cfg.FTPHost + cfg.FTPPath
	}
	return &Awards{
		feedURL: feedURL,
		ftp: fetcher.NewFTPFetcher(fetcher.FTPOptions{
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
		}),
	}
}

func (d *Awards) Name() string     { return "awards" }
func (d *Awards) Table() string    { return awardsTable }
func (d *Awards) Cadence() Cadence { return Monthly }

func (d *Awards) ShouldRun(now time.Time, last *SyncEntry) bool {
	if last == nil {
		return true
	}
	return now.Sub(last.StartedAt) >= 28*24*time.Hour
}

func (d *Awards) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string, last *SyncEntry) (*SyncResult, error) {
	log := zap.L().With(zap.String("feed", "awards"))

	if d.feedURL == "" {
		return nil, eris.New("awards: no feed url configured (set dataset.feed_url or dataset.ftp_host)")
	}

	u, err := url.Parse(d.feedURL)
	if err != nil {
		return nil, eris.Wrap(err, "awards: parse feed url")
	}

	dataPath := filepath.Join(tempDir, "awards"+path.Ext(u.Path))
	meta := map[string]any{"source": d.feedURL}

	switch u.Scheme {
	case "ftp":
		log.Info("downloading feed over ftp", zap.String("url", d.feedURL))
		if _, err := d.ftp.DownloadToFile(ctx, d.feedURL, dataPath); err != nil {
			return nil, eris.Wrap(err, "awards: ftp download")
		}

	case "http", "https":
		etag := priorETag(last)
		body, newETag, changed, err := f.DownloadIfChanged(ctx, d.feedURL, etag)
		if err != nil {
			return nil, eris.Wrap(err, "awards: http download")
		}
		if !changed {
			log.Info("feed unchanged upstream, skipping load", zap.String("etag", etag))
			meta["etag"] = etag
			return &SyncResult{RowsSynced: 0, Metadata: meta}, nil
		}
		if err := writeToFile(body, dataPath); err != nil {
			return nil, err
		}
		if newETag != "" {
			meta["etag"] = newETag
		}

	default:
		return nil, eris.Errorf("awards: unsupported feed scheme %q", u.Scheme)
	}
	defer os.Remove(dataPath) //nolint:errcheck

	// ZIP drops wrap a single CSV or XLSX.
	if strings.EqualFold(filepath.Ext(dataPath), ".zip") {
		extracted, err := fetcher.ExtractZIPSingle(dataPath, tempDir)
		if err != nil {
			return nil, eris.Wrap(err, "awards: extract archive")
		}
		_ = os.Remove(dataPath)
		dataPath = extracted
		defer os.Remove(dataPath) //nolint:errcheck
	}

	rows, err := d.loadFile(ctx, pool, dataPath, last == nil)
	if err != nil {
		return nil, err
	}

	log.Info("awards feed loaded", zap.Int64("rows", rows))
	return &SyncResult{RowsSynced: rows, Metadata: meta}, nil
}

// loadFile parses the downloaded file (CSV or XLSX by extension) into
// fin_data.award_records. The first ever sync loads an empty table, so it
// takes the plain COPY path; refreshes replay rows already loaded and go
// through the temp-table upsert.
func (d *Awards) loadFile(ctx context.Context, pool db.Pool, dataPath string, initial bool) (int64, error) {
	// Own cancel so an upsert error also stops the parser goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)

	var rowCh <-chan []string
	var errCh <-chan error
	switch strings.ToLower(filepath.Ext(dataPath)) {
	case ".xlsx":
		rowCh, errCh = fetcher.StreamXLSX(ctx, dataPath, fetcher.XLSXOptions{
			SkipRows: 1,
			HeaderCh: headerCh,
		})
	default:
		file, err := os.Open(dataPath)
		if err != nil {
			return 0, eris.Wrap(err, "awards: open data file")
		}
		defer file.Close() //nolint:errcheck
		rowCh, errCh = fetcher.StreamCSV(ctx, file, fetcher.CSVOptions{
			HasHeader:  true,
			HeaderCh:   headerCh,
			LazyQuotes: true,
			TrimSpace:  true,
		})
	}

	var colIdx map[string]int
	var batch [][]any
	var total int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var n int64
		var err error
		if initial {
			n, err = db.CopyInto(ctx, pool, awardsTable, awardColumns, batch)
		} else {
			n, err = db.BulkUpsert(ctx, pool, db.UpsertConfig{
				Table:        awardsTable,
				Columns:      awardColumns,
				ConflictKeys: []string{"awardid"},
			}, batch)
		}
		if err != nil {
			return eris.Wrap(err, "awards: load batch")
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for record := range rowCh {
		if colIdx == nil {
			// The parser buffers the header before emitting any row.
			colIdx = mapColumns(<-headerCh)
		}

		row, ok := awardRow(record, colIdx)
		if !ok {
			continue // skip rows without a valid award id
		}
		batch = append(batch, row)

		if len(batch) >= awardsBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := <-errCh; err != nil {
		return total, eris.Wrap(err, "awards: parse feed")
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// awardRow converts one feed record into load order, rejecting rows without
// a parseable award id.
func awardRow(record []string, colIdx map[string]int) ([]any, bool) {
	awardID := parseInt64Or(trimQuotes(getCol(record, colIdx, "awardid")), 0)
	if awardID == 0 {
		return nil, false
	}

	return []any{
		awardID,
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "recipientname"))),
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "recipientaddress"))),
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "recipientcity"))),
		trimQuotes(getCol(record, colIdx, "recipientstate")),
		trimQuotes(getCol(record, colIdx, "recipientzip")),
		parseFloat64Or(trimQuotes(getCol(record, colIdx, "awardamount")), 0),
		parseFloat64Or(trimQuotes(getCol(record, colIdx, "disbursedamount")), 0),
		parseIntOr(trimQuotes(getCol(record, colIdx, "jobsreported")), 0),
		parseDateOr(trimQuotes(getCol(record, colIdx, "dateawarded"))),
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "awardstatus"))),
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "businesstype"))),
		trimQuotes(getCol(record, colIdx, "naicscode")),
		sanitizeUTF8(trimQuotes(getCol(record, colIdx, "program"))),
	}, true
}

// priorETag digs the ETag out of the previous successful sync's metadata.
func priorETag(last *SyncEntry) string {
	if last == nil || last.Metadata == nil {
		return ""
	}
	etag, _ := last.Metadata["etag"].(string)
	return etag
}

func writeToFile(body io.ReadCloser, dataPath string) error {
	defer body.Close() //nolint:errcheck

	file, err := os.Create(dataPath)
	if err != nil {
		return eris.Wrap(err, "awards: create data file")
	}
	defer file.Close() //nolint:errcheck

	if _, err := io.Copy(file, body); err != nil {
		return eris.Wrap(err, "awards: write data file")
	}
	return nil
}
