// Package archive pulls a single CSV member out of a zip archive.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zip"
)

// ErrMemberNotFound is wrapped by ArchiveError when the archive lacks the
// requested member.
var ErrMemberNotFound = errors.New("member not found")

// ArchiveError reports an unreadable archive or a missing member.
type ArchiveError struct {
	Archive string
	Member  string
	Err     error
}

func (e *ArchiveError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("archive %s: %v", e.Archive, e.Err)
	}
	return fmt.Sprintf("archive %s: %s: %v", e.Archive, e.Member, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

var (
	magicLocal = []byte("PK\x03\x04")
	magicEmpty = []byte("PK\x05\x06")
)

// IsZip reports whether the file at p starts with a zip signature.
func IsZip(p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	head = head[:n]
	return bytes.Equal(head, magicLocal) || bytes.Equal(head, magicEmpty), nil
}

// Extract copies member from the zip at archivePath into dest, creating or
// truncating it, and returns the number of bytes written.
//
// member is matched against the full member name first, then against the
// base name of members stored under a directory.
func Extract(ctx context.Context, archivePath, member, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, &ArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	zf := find(zr.File, member)
	if zf == nil {
		return 0, &ArchiveError{Archive: archivePath, Member: member, Err: ErrMemberNotFound}
	}

	src, err := zf.Open()
	if err != nil {
		return 0, &ArchiveError{Archive: archivePath, Member: member, Err: err}
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: src})
	if cerr := out.Close(); err == nil && cerr != nil {
		return n, fmt.Errorf("close %s: %w", dest, cerr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, &ArchiveError{Archive: archivePath, Member: member, Err: err}
	}
	return n, nil
}

func find(files []*zip.File, member string) *zip.File {
	for _, f := range files {
		if f.Name == member {
			return f
		}
	}
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if path.Base(f.Name) == member {
			return f
		}
	}
	return nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
