package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks an archive dump into destDir and returns the paths
// of the extracted files. Directory entries are not reported; parents are
// created as needed.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	extracted := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, err := entryPath(destDir, f.Name)
		if err != nil {
			return extracted, err
		}
		if err := writeEntry(f, dest); err != nil {
			return extracted, err
		}
		extracted = append(extracted, dest)
	}
	return extracted, nil
}

// entryPath maps an archive member name into destDir, rejecting names
// that would escape it.
func entryPath(destDir, name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return filepath.Join(destDir, filepath.FromSlash(name)), nil
}

func writeEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrap(err, "zip: write file")
	}
	return nil
}
