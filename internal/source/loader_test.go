package source

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/fetcher"
)

const recordCG = `{"state_code":"CG","registration_no":"PCGRERA250517000011","project_name":"Green Valley Phase 1","address":"Ring Road 1, Raipur","promoter_name":"Shree Balaji Developers","scraped_at":"2026-05-17T10:00:00Z"}`

const recordMH = `{"state_code":"MH","registration_no":"P52100001234","project_name":"Sky Towers","address":"Baner, Pune","promoter_name":"Agrawal Estates LLP","scraped_at":"2026-05-18T09:30:00Z"}`

func newTestLoader() *Loader {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:          "test-agent",
		Timeout:            5 * time.Second,
		MaxRetries:         1,
		DefaultRatePerHost: 100,
	})
	return NewLoader(httpFetcher, nil, "")
}

func TestLoad_JSONArrayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte("["+recordCG+","+recordMH+"]"), 0o644))

	records, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "PCGRERA250517000011", records[0].RegistrationNo)
	assert.Equal(t, "MH", records[1].StateCode)
}

func TestLoad_SingleObjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(recordCG), 0o644))

	records, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Green Valley Phase 1", records[0].ProjectName)
}

func TestLoad_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(recordCG+"\n"+recordMH+"\n"), 0o644))

	records, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_mh.json"), []byte(recordMH), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_cg.json"), []byte(recordCG), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	records, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Files load in name order.
	assert.Equal(t, "CG", records[0].StateCode)
	assert.Equal(t, "MH", records[1].StateCode)
}

func TestLoad_ZipBundle(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	fw, err := w.Create("cg.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(recordCG))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	records, err := newTestLoader().Load(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PCGRERA250517000011", records[0].RegistrationNo)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.xml")
	require.NoError(t, os.WriteFile(path, []byte("<records/>"), 0o644))

	_, err := newTestLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source")
}

func TestLoad_HTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("[" + recordCG + "]")) //nolint:errcheck
	}))
	defer srv.Close()

	records, err := newTestLoader().Load(context.Background(), srv.URL+"/bundle.json")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CG", records[0].StateCode)
}

func TestLoad_FTPWithoutFetcherConfigured(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), "ftp://mirror.example.org/dumps/cg.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ftp fetcher configured")
}

func TestLoad_FTPFetcherReachesMirror(t *testing.T) {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{DefaultRatePerHost: 100})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: 200 * time.Millisecond})
	loader := NewLoader(httpFetcher, ftpFetcher, "")

	// Nothing listens on the TEST-NET address; a configured loader must
	// get as far as dialing the mirror instead of refusing the scheme.
	_, err := loader.Load(context.Background(), "ftp://192.0.2.1/dumps/cg.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp dial")
	assert.NotContains(t, err.Error(), "no ftp fetcher configured")
}

// memETags is a map-backed ETagStore for tests.
type memETags map[string]string

func (m memETags) ETag(url string) string   { return m[url] }
func (m memETags) SetETag(url, etag string) { m[url] = etag }

func TestLoad_ConditionalDownload(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("[" + recordCG + "]")) //nolint:errcheck
	}))
	defer srv.Close()

	store := memETags{}
	loader := newTestLoader().WithETags(store)
	url := srv.URL + "/bundle.json"

	records, err := loader.Load(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, `"v1"`, store[url])

	// Second load finds the stored validator and skips the download.
	_, err = loader.Load(context.Background(), url)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnchanged))
	assert.Equal(t, 2, gets)
}

func TestLoad_WithoutETagStoreAlwaysDownloads(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets++
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("[" + recordCG + "]")) //nolint:errcheck
	}))
	defer srv.Close()

	loader := newTestLoader()
	for range 2 {
		records, err := loader.Load(context.Background(), srv.URL+"/bundle.json")
		require.NoError(t, err)
		require.Len(t, records, 1)
	}
	assert.Equal(t, 2, gets)
}
