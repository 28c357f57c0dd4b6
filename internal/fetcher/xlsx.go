package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions controls how StreamXLSX reads a workbook.
type XLSXOptions struct {
	// SheetIndex picks a sheet by position. Ignored when SheetName is set.
	SheetIndex int
	// SheetName picks a sheet by its tab name.
	SheetName string
	// SkipRows drops this many rows from the top, header included.
	SkipRows int
	// HeaderCh, when set, receives the first row before any data row.
	HeaderCh chan<- []string
}

// StreamXLSX reads one sheet of a workbook row by row on its own goroutine,
// mirroring the StreamCSV contract: rows on the first channel, at most one
// error on the second, both closed on completion.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)
		if err := streamSheetRows(ctx, path, opts, rows); err != nil {
			errs <- err
		}
	}()

	return rows, errs
}

func streamSheetRows(ctx context.Context, path string, opts XLSXOptions, rows chan<- []string) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return err
	}

	for i, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "xlsx: context cancelled")
		}

		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}

		if i == 0 && opts.HeaderCh != nil {
			select {
			case opts.HeaderCh <- cells:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
			}
		}
		if i < opts.SkipRows {
			continue
		}

		select {
		case rows <- cells:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
	}
	return nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
