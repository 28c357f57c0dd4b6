package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIPSingle unpacks an archive that wraps exactly one file and
// returns the extracted path. Feed archives carry one CSV or XLSX per drop,
// so anything else means the publisher changed the format.
func ExtractZIPSingle(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var entry *zip.File
	count := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entry = f
		count++
	}
	if count != 1 {
		return "", eris.Errorf("zip: expected exactly 1 file, got %d", count)
	}

	dest, err := entryDestPath(destDir, entry.Name)
	if err != nil {
		return "", err
	}
	if err := writeZIPEntry(entry, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// entryDestPath resolves an archive member name under destDir, rejecting
// names that would escape it.
func entryDestPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, name)
	if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return dest, nil
}

func writeZIPEntry(f *zip.File, dest string) error {
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
