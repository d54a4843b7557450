// Package datasource acquires the raw movie metadata CSV.
//
// Stage resolves a source location (http(s) URL, file:// URL, or local path),
// downloads remote sources, unpacks zip archives and leaves a plain CSV in a
// private temporary directory. Callers must call Staged.Cleanup on every path.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"movieetl/internal/datasource/archive"
	"movieetl/internal/datasource/file"
	"movieetl/internal/datasource/httpds"
)

// Source yields the bytes of one input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ErrUnsupportedScheme is returned for locations that are neither http(s),
// file:// nor a local path.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// Logger is the minimal logging surface used while staging.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// StageOptions configures Stage.
type StageOptions struct {
	// ArchiveMember names the CSV inside a zip archive.
	ArchiveMember string

	HTTP httpds.Config

	// TempRoot is the parent of the private temp directory; "" uses os.TempDir.
	TempRoot string

	Logger Logger
}

// Staged is a CSV ready to stream. It implements Source.
type Staged struct {
	// Path of the CSV. It lies inside a private temp directory unless the
	// location was already a local bare CSV.
	Path string

	Location   string
	Downloaded bool
	Extracted  bool
	Bytes      int64

	dir string
}

// Open opens the staged CSV.
func (s *Staged) Open(ctx context.Context) (io.ReadCloser, error) {
	return file.NewLocal(s.Path).Open(ctx)
}

// Cleanup removes the temporary directory and everything in it. It never
// touches a caller-owned local CSV. Safe on nil and safe to call twice.
func (s *Staged) Cleanup() error {
	if s == nil || s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir = ""
	return os.RemoveAll(dir)
}

// Remote reports whether location is fetched over HTTP.
func Remote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

// LocalPath maps a file:// URL or bare path to a filesystem path.
func LocalPath(location string) (string, error) {
	if location == "" {
		return "", errors.New("empty source location")
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare path; a one-letter scheme is a Windows drive letter
		return location, nil
	}
	if strings.EqualFold(u.Scheme, "file") {
		if u.Path == "" {
			return "", fmt.Errorf("file location %q has no path", location)
		}
		return filepath.FromSlash(u.Path), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// Stage acquires location and returns the CSV to stream.
//
// Remote locations are downloaded into the temp directory; transfer failures
// are *httpds.TransferError. Zip archives (detected by signature, not by file
// extension) have opt.ArchiveMember extracted; failures are
// *archive.ArchiveError. On error nothing is left on disk.
func Stage(ctx context.Context, location string, opt StageOptions) (*Staged, error) {
	log := opt.Logger
	if log == nil {
		log = discardLogger{}
	}
	member := opt.ArchiveMember
	if member == "" {
		member = "movies_metadata.csv"
	}

	dir, err := os.MkdirTemp(opt.TempRoot, "movieetl-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	st := &Staged{Location: location, dir: dir}

	fail := func(err error) (*Staged, error) {
		_ = st.Cleanup()
		return nil, err
	}

	var raw string
	if Remote(location) {
		raw = filepath.Join(dir, "download")
		log.Printf("Downloading data from %s...", location)
		n, err := download(ctx, location, raw, opt.HTTP)
		if err != nil {
			return fail(err)
		}
		log.Printf("Download complete.")
		st.Downloaded = true
		st.Bytes = n
	} else {
		raw, err = LocalPath(location)
		if err != nil {
			return fail(err)
		}
		fi, err := os.Stat(raw)
		if err != nil {
			return fail(fmt.Errorf("stat source: %w", err))
		}
		if fi.IsDir() {
			return fail(fmt.Errorf("source %s is a directory", raw))
		}
		log.Printf("Reading data from %s...", raw)
		st.Bytes = fi.Size()
	}

	isZip, err := archive.IsZip(raw)
	if err != nil {
		return fail(fmt.Errorf("inspect source: %w", err))
	}
	if !isZip {
		st.Path = raw
		return st, nil
	}

	csvPath := filepath.Join(dir, filepath.Base(member))
	n, err := archive.Extract(ctx, raw, member, csvPath)
	if err != nil {
		return fail(err)
	}
	if st.Downloaded {
		// the archive is no longer needed once the member is out
		_ = os.Remove(raw)
	}
	st.Path = csvPath
	st.Extracted = true
	st.Bytes = n
	return st, nil
}

func download(ctx context.Context, location, dest string, cfg httpds.Config) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create download file: %w", err)
	}
	n, err := httpds.NewClient(cfg).Fetch(ctx, location, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		return n, fmt.Errorf("close download file: %w", cerr)
	}
	return n, err
}
