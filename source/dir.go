package source

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/upload"
)

// FromDir reads every regular file under root. Paths are relative to root.
// .git directories are always skipped.
func FromDir(root string, opts Options) ([]upload.FileEntry, error) {
	f, err := newFilter(opts)
	if err != nil {
		return nil, err
	}

	var out []upload.FileEntry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" || f.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			log.Debug("Skipping non-regular file", "path", rel)
			return nil
		}
		if f.excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := f.checkSize(rel, info.Size()); err != nil {
			return err
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, upload.FileEntry{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEntries(out)
	log.Debug("Collected files from directory", "root", root, "files", len(out))
	return out, nil
}
