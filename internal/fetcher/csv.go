package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions controls how StreamCSV reads a feed file.
type CSVOptions struct {
	// Delimiter overrides the comma. Some feeds publish pipe-delimited drops.
	Delimiter rune
	// HasHeader treats the first row as a header rather than data.
	HasHeader bool
	// HeaderCh, when set with HasHeader, receives the header row.
	HeaderCh chan<- []string
	// Comment skips lines starting with this rune. Zero disables.
	Comment    rune
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV parses r row by row on its own goroutine. Rows arrive on the
// first channel and at most one error on the second; both close once the
// input is exhausted or the stream dies early from a parse error or a
// cancelled ctx.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		if err := streamCSVRows(ctx, r, opts, rows); err != nil {
			errs <- err
		}
	}()

	return rows, errs
}

func streamCSVRows(ctx context.Context, r io.Reader, opts CSVOptions, rows chan<- []string) error {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	// Feed drops are not strictly rectangular; column handling happens
	// downstream where the header is known.
	reader.FieldsPerRecord = -1

	wantHeader := opts.HasHeader
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i := range record {
				record[i] = strings.TrimSpace(record[i])
			}
		}

		if wantHeader {
			wantHeader = false
			if opts.HeaderCh == nil {
				continue
			}
			select {
			case opts.HeaderCh <- record:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "csv: context cancelled")
			}
			continue
		}

		select {
		case rows <- record:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
	}
}
