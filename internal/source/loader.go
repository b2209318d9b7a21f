// Package source resolves a --source argument into the records an ingest
// run consumes: a directory of per-registration JSON files, a single JSON
// array, a JSONL stream, a ZIP bundle, or a URL downloaded first. The
// loader only decodes; record validation belongs to the engine.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/fetcher"
	"github.com/propdata/rera-ingest/internal/model"
)

// ErrUnchanged reports that a remote source still matches the validator
// recorded on the last run, so there is nothing new to ingest.
var ErrUnchanged = eris.New("source: remote source unchanged since last run")

// ETagStore persists, per source URL, the validator the server returned
// on the last download. The scrape cache implements it.
type ETagStore interface {
	ETag(url string) string
	SetETag(url, etag string)
}

// Loader resolves source arguments. Remote sources are fetched into
// tempDir before decoding.
type Loader struct {
	http    fetcher.Fetcher
	ftp     *fetcher.FTPFetcher
	etags   ETagStore
	tempDir string
	log     *zap.Logger
}

// NewLoader builds a loader. ftpFetcher may be nil when FTP mirrors are
// not configured; tempDir empty means the system default.
func NewLoader(httpFetcher fetcher.Fetcher, ftpFetcher *fetcher.FTPFetcher, tempDir string) *Loader {
	return &Loader{
		http:    httpFetcher,
		ftp:     ftpFetcher,
		tempDir: tempDir,
		log:     zap.L().With(zap.String("component", "source")),
	}
}

// WithETags makes HTTP downloads conditional: a source whose ETag still
// matches the store yields ErrUnchanged instead of a fresh download.
func (l *Loader) WithETags(store ETagStore) *Loader {
	l.etags = store
	return l
}

// Load resolves src into source records.
func (l *Loader) Load(ctx context.Context, src string) ([]model.SourceRecord, error) {
	if isRemote(src) {
		local, cleanup, err := l.fetchToTemp(ctx, src)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return l.loadPath(ctx, local)
	}
	return l.loadPath(ctx, src)
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "ftp://")
}

func (l *Loader) loadPath(ctx context.Context, p string) ([]model.SourceRecord, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: stat %s", p)
	}
	if info.IsDir() {
		return l.loadDir(ctx, p)
	}

	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		return l.loadJSONFile(ctx, p)
	case ".jsonl":
		return l.loadJSONL(ctx, p)
	case ".zip":
		return l.loadZip(ctx, p)
	default:
		return nil, eris.Errorf("source: unsupported source %s (want a directory, .json, .jsonl, .zip, or a URL)", p)
	}
}

// fetchToTemp downloads a remote source next to nothing else and returns
// the local path plus a cleanup func. The URL path's extension decides how
// the download is decoded; extension-less portal endpoints are treated as
// JSON.
func (l *Loader) fetchToTemp(ctx context.Context, rawURL string) (string, func(), error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, eris.Wrapf(err, "source: parse url %s", rawURL)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		ext = ".json"
	}

	dir, err := os.MkdirTemp(l.tempDir, "source-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "source: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	local := filepath.Join(dir, "download"+ext)

	var n int64
	switch u.Scheme {
	case "http", "https":
		if l.etags != nil {
			n, err = l.downloadConditional(ctx, rawURL, local)
		} else {
			n, err = l.http.DownloadToFile(ctx, rawURL, local)
		}
	case "ftp":
		if l.ftp == nil {
			err = eris.New("source: ftp source given but no ftp fetcher configured")
		} else {
			n, err = l.ftp.DownloadToFile(ctx, rawURL, local)
		}
	default:
		err = eris.Errorf("source: unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}

	l.log.Info("downloaded source",
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)
	return local, cleanup, nil
}

// downloadConditional sends the stored ETag along and records the one the
// server answers with. An unchanged source never hits the disk.
func (l *Loader) downloadConditional(ctx context.Context, rawURL, local string) (int64, error) {
	body, etag, changed, err := l.http.DownloadIfChanged(ctx, rawURL, l.etags.ETag(rawURL))
	if err != nil {
		return 0, err
	}
	if !changed {
		l.log.Info("source unchanged, skipping download", zap.String("url", rawURL))
		return 0, ErrUnchanged
	}
	defer body.Close() //nolint:errcheck

	f, err := os.Create(local)
	if err != nil {
		return 0, eris.Wrap(err, "source: create download file")
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(f, body)
	if err != nil {
		return n, eris.Wrap(err, "source: write download")
	}
	l.etags.SetETag(rawURL, etag)
	return n, nil
}

func (l *Loader) loadDir(ctx context.Context, dir string) ([]model.SourceRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	records := make([]model.SourceRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := l.loadJSONFile(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	l.log.Info("loaded source directory",
		zap.String("dir", dir),
		zap.Int("files", len(names)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// loadJSONFile accepts both shapes portals hand over: a top-level array of
// records or a single record object.
func (l *Loader) loadJSONFile(ctx context.Context, p string) ([]model.SourceRecord, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", p)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := firstNonSpace(br)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", p)
	}

	if first == '[' {
		items, errs := fetcher.DecodeJSONArray[model.SourceRecord](ctx, br)
		records, err := drain(items, errs)
		if err != nil {
			return nil, eris.Wrapf(err, "source: decode %s", p)
		}
		return records, nil
	}

	rec, err := fetcher.DecodeJSONObject[model.SourceRecord](br)
	if err != nil {
		return nil, eris.Wrapf(err, "source: decode %s", p)
	}
	return []model.SourceRecord{*rec}, nil
}

func (l *Loader) loadJSONL(ctx context.Context, p string) ([]model.SourceRecord, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", p)
	}
	defer f.Close()

	var records []model.SourceRecord
	dec := json.NewDecoder(f)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec model.SourceRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "source: decode %s line %d", p, len(records)+1)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *Loader) loadZip(ctx context.Context, zipPath string) ([]model.SourceRecord, error) {
	dest, err := os.MkdirTemp(l.tempDir, "bundle-*")
	if err != nil {
		return nil, eris.Wrap(err, "source: create extraction dir")
	}
	defer os.RemoveAll(dest)

	files, err := fetcher.ExtractZIP(zipPath, dest)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var records []model.SourceRecord
	decoded := 0
	for _, p := range files {
		if strings.ToLower(filepath.Ext(p)) != ".json" {
			continue
		}
		recs, err := l.loadJSONFile(ctx, p)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		decoded++
	}

	l.log.Info("loaded zip bundle",
		zap.String("zip", zipPath),
		zap.Int("files", decoded),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// firstNonSpace peeks past leading whitespace without consuming anything
// the decoder will need.
func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return c, nil
	}
}

func drain(items <-chan model.SourceRecord, errs <-chan error) ([]model.SourceRecord, error) {
	var records []model.SourceRecord
	for rec := range items {
		records = append(records, rec)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return records, nil
}
