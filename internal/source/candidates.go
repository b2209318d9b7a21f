package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/fetcher"
	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
)

// ReadCandidates parses a state's published registration index (the list
// of registration numbers a portal advertises) into candidate rows for the
// crawl frontier. XLSX workbooks and CSV exports are both accepted;
// columns are located by header name because every state lays the sheet
// out differently. Remote indexes are downloaded first.
func (l *Loader) ReadCandidates(ctx context.Context, src, stateCode string) ([]model.CandidateRegistration, error) {
	state := normalize.Key(stateCode)
	if state == "" {
		return nil, eris.New("source: candidate index needs a state code")
	}

	p := src
	if isRemote(src) {
		local, cleanup, err := l.fetchToTemp(ctx, src)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		p = local
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xlsx":
		rows, err = fetcher.ReadXLSX(p, fetcher.XLSXOptions{})
	case ".csv":
		rows, err = readCSVRows(ctx, p)
	default:
		return nil, eris.Errorf("source: unsupported candidate index %s (want .xlsx or .csv)", p)
	}
	if err != nil {
		return nil, err
	}

	candidates, err := parseCandidates(rows, state)
	if err != nil {
		return nil, eris.Wrapf(err, "source: candidate index %s", src)
	}

	l.log.Info("parsed candidate index",
		zap.String("source", src),
		zap.String("state", state),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func readCSVRows(ctx context.Context, p string) ([][]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", p)
	}
	defer f.Close()

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// candidateLayout holds the column index of each recognized header, -1
// when the sheet does not carry it.
type candidateLayout struct {
	regNo, project, district, listed int
}

func candidateColumns(header []string) (candidateLayout, error) {
	layout := candidateLayout{regNo: -1, project: -1, district: -1, listed: -1}
	for i, h := range header {
		switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_") {
		case "registration_no", "registration_number", "rera_no", "regno":
			layout.regNo = i
		case "project_name", "project":
			layout.project = i
		case "district":
			layout.district = i
		case "listed_at", "listed_on", "published_on", "published":
			layout.listed = i
		}
	}
	if layout.regNo < 0 {
		return layout, eris.Errorf("no registration number column in header %v", header)
	}
	return layout, nil
}

func parseCandidates(rows [][]string, state string) ([]model.CandidateRegistration, error) {
	if len(rows) == 0 {
		return nil, eris.New("index is empty")
	}

	layout, err := candidateColumns(rows[0])
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.CandidateRegistration, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		regNo := normalize.Key(cell(row, layout.regNo))
		if regNo == "" {
			skipped++
			continue
		}
		out = append(out, model.CandidateRegistration{
			StateCode:      state,
			RegistrationNo: regNo,
			ProjectName:    strings.TrimSpace(cell(row, layout.project)),
			District:       strings.TrimSpace(cell(row, layout.district)),
			ListedAt:       parseListedAt(cell(row, layout.listed), now),
		})
	}
	if skipped > 0 {
		zap.L().Warn("source: candidate rows without a registration number",
			zap.Int("rows", skipped),
		)
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseListedAt accepts the date formats state portals actually publish.
// Unparseable or missing dates fall back to the load time so the frontier
// row still sorts.
func parseListedAt(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "02-01-2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
