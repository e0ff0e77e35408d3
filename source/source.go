// Package source collects the files of an upload from a local directory, a
// ZIP archive or an S3 prefix.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/maruel/natural"
	"github.com/ocuroot/gitdrop/upload"
)

var ErrFileTooLarge = errors.New("file exceeds the size limit")

type Options struct {
	// Exclude holds glob patterns matched against slash separated relative
	// paths. Patterns without a slash also match any base name.
	Exclude []string
	// MaxFileSize rejects larger files. Zero means no limit.
	MaxFileSize int64
	// StripTopLevel removes the single top level folder of a ZIP archive,
	// if all entries share one.
	StripTopLevel bool
	// S3 is used for s3:// targets.
	S3 S3API
}

// Collect reads target, which may be an s3://bucket/prefix URL, a .zip
// file, a directory or a single file.
func Collect(ctx context.Context, target string, opts Options) ([]upload.FileEntry, error) {
	if bucket, prefix, ok := parseS3URL(target); ok {
		if opts.S3 == nil {
			return nil, fmt.Errorf("no S3 client configured for %s", target)
		}
		return FromS3(ctx, opts.S3, bucket, prefix, opts)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return FromDir(target, opts)
	case strings.EqualFold(path.Ext(target), ".zip"):
		return FromZipFile(target, opts)
	default:
		return fromFile(target, info, opts)
	}
}

func parseS3URL(target string) (bucket, prefix string, ok bool) {
	rest, ok := strings.CutPrefix(target, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, prefix, bucket != ""
}

func fromFile(filename string, info os.FileInfo, opts Options) ([]upload.FileEntry, error) {
	f, err := newFilter(opts)
	if err != nil {
		return nil, err
	}
	name := info.Name()
	if f.excluded(name) {
		return nil, nil
	}
	if err := f.checkSize(name, info.Size()); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return []upload.FileEntry{{Path: name, Content: content}}, nil
}

type filter struct {
	exclude []glob.Glob
	// baseOnly marks patterns that are matched against the base name.
	baseOnly []bool
	maxSize  int64
}

func newFilter(opts Options) (*filter, error) {
	f := &filter{maxSize: opts.MaxFileSize}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.exclude = append(f.exclude, g)
		f.baseOnly = append(f.baseOnly, !strings.Contains(pattern, "/"))
	}
	return f, nil
}

func (f *filter) excluded(relPath string) bool {
	for i, g := range f.exclude {
		if g.Match(relPath) {
			return true
		}
		if f.baseOnly[i] && g.Match(path.Base(relPath)) {
			return true
		}
	}
	return false
}

func (f *filter) checkSize(relPath string, size int64) error {
	if f.maxSize > 0 && size > f.maxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, relPath, size, f.maxSize)
	}
	return nil
}

// sortEntries orders entries so numbered files appear in human order.
func sortEntries(entries []upload.FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return natural.Less(entries[i].Path, entries[j].Path)
	})
}
