// Package fetcher downloads and decodes the formats state portals publish:
// JSON record bundles over HTTP, registration indexes as CSV/XLSX, archived
// document dumps as ZIP, and the occasional FTP mirror.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	LazyQuotes bool // portal exports quote inconsistently
	TrimSpace  bool
}

// StreamCSV sends the rows of a CSV export to a channel so large indexes
// never sit in memory whole. Rows with no content at all are dropped;
// several portals pad their exports with blank lines. The caller must
// drain the row channel; both channels close when reading completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		// States disagree on column counts even within one export.
		reader.FieldsPerRecord = -1

		rowNo := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			rowNo++
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: row %d", rowNo)
				return
			}

			if opts.TrimSpace {
				for i, field := range row {
					row[i] = strings.TrimSpace(field)
				}
			}
			if blankRow(row) {
				continue
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func blankRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
