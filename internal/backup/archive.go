package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArchiveBuilder packs the shared document directory into a single zip
// archive. Only immediate-child regular files are included, flat, under
// their base names; subdirectories are ignored.
type ArchiveBuilder struct{}

// BuildArchive writes the archive to w and returns the number of files
// archived and the archive size in bytes. A missing directory or a
// directory with no regular files yields (0, 0, nil): nothing to archive is
// not an error.
func (ArchiveBuilder) BuildArchive(dir string, w io.Writer) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read documents dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return 0, 0, nil
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, name := range names {
		if err := addFile(zw, dir, name); err != nil {
			zw.Close()
			return 0, 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("finish archive: %w", err)
	}

	return len(names), cw.n, nil
}

func addFile(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("open document %s: %w", name, err)
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("archive document %s: %w", name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
