package source

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/upload"
)

// FromZipFile opens and reads a ZIP archive from disk.
func FromZipFile(filename string, opts Options) ([]upload.FileEntry, error) {
	r, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer r.Close()
	return fromZipReader(&r.Reader, opts)
}

// FromZip reads the files of a ZIP archive. Folder entries and macOS
// metadata are skipped. Entries that would land outside the repository
// root are rejected.
func FromZip(r io.ReaderAt, size int64, opts Options) ([]upload.FileEntry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return fromZipReader(zr, opts)
}

func fromZipReader(zr *zip.Reader, opts Options) ([]upload.FileEntry, error) {
	f, err := newFilter(opts)
	if err != nil {
		return nil, err
	}

	type member struct {
		path string
		file *zip.File
	}
	var members []member
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
			continue
		}
		name := strings.ReplaceAll(zf.Name, "\\", "/")
		if strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store" {
			continue
		}

		p, err := upload.NormalizePath(name)
		if err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", zf.Name, err)
		}
		members = append(members, member{path: p, file: zf})
	}

	if opts.StripTopLevel {
		paths := make([]string, len(members))
		for i, m := range members {
			paths[i] = m.path
		}
		if top := commonTopLevel(paths); top != "" {
			for i := range members {
				members[i].path = strings.TrimPrefix(members[i].path, top+"/")
			}
		}
	}

	var out []upload.FileEntry
	for _, m := range members {
		if f.excluded(m.path) {
			continue
		}
		if err := f.checkSize(m.path, int64(m.file.UncompressedSize64)); err != nil {
			return nil, err
		}

		content, err := readZipFile(m.file, f.maxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", m.path, err)
		}
		out = append(out, upload.FileEntry{Path: m.path, Content: content})
	}

	sortEntries(out)
	log.Debug("Collected files from archive", "files", len(out))
	return out, nil
}

func readZipFile(zf *zip.File, maxSize int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if maxSize <= 0 {
		return io.ReadAll(rc)
	}
	// Declared sizes can lie.
	content, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d", ErrFileTooLarge, maxSize)
	}
	return content, nil
}

// commonTopLevel returns the folder every path lives in, or "" if the paths
// do not share exactly one top level folder.
func commonTopLevel(paths []string) string {
	var top string
	for _, p := range paths {
		dir, _, ok := strings.Cut(p, "/")
		if !ok {
			return ""
		}
		if top == "" {
			top = dir
		} else if dir != top {
			return ""
		}
	}
	return top
}
