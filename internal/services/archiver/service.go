// Package archiver compresses a staged workspace into a single zip file.
package archiver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// ErrArchiveExists is returned when the destination archive is already present
// and overwriting is disabled.
var ErrArchiveExists = errors.New("archive already exists")

const tmpSuffix = ".tmp"

// Archiver defines the interface for archive operations.
type Archiver interface {
	Compress(ctx context.Context, sourceDir, destFile string) (*models.ArchiveResult, error)
}

// Options configures a ZipArchiver.
type Options struct {
	Overwrite bool
}

// ZipArchiver writes Deflate-compressed zip archives.
type ZipArchiver struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a new zip archiver.
func New(logger zerolog.Logger, opts Options) *ZipArchiver {
	return &ZipArchiver{
		opts:   opts,
		logger: logger,
	}
}

// Compress archives every entry below sourceDir into destFile. Entry names are
// relative to sourceDir. The archive is assembled next to destFile and renamed
// into place only once complete.
func (a *ZipArchiver) Compress(ctx context.Context, sourceDir, destFile string) (*models.ArchiveResult, error) {
	start := time.Now()

	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", sourceDir)
	}

	if !a.opts.Overwrite {
		if _, err := os.Lstat(destFile); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrArchiveExists, destFile)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking archive: %w", err)
		}
	}

	a.logger.Info().
		Str("source", sourceDir).
		Str("archive", destFile).
		Msg("compressing workspace")

	tmpFile := destFile + tmpSuffix
	out, err := os.OpenFile(tmpFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // destFile is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	hasher := sha256.New()
	entries, err := a.write(ctx, io.MultiWriter(out, hasher), sourceDir)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(tmpFile)
		return nil, err
	}

	if err := os.Rename(tmpFile, destFile); err != nil {
		_ = os.Remove(tmpFile)
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	stat, err := os.Stat(destFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	result := &models.ArchiveResult{
		Path:      destFile,
		SizeBytes: stat.Size(),
		Entries:   entries,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		Duration:  time.Since(start),
	}

	a.logger.Info().
		Str("archive", destFile).
		Int("entries", result.Entries).
		Int64("size_bytes", result.SizeBytes).
		Str("sha256", result.Checksum).
		Dur("duration", result.Duration).
		Msg("archive created")

	return result, nil
}

func (a *ZipArchiver) write(ctx context.Context, w io.Writer, sourceDir string) (int, error) {
	zw := zip.NewWriter(w)
	entries := 0

	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			header.Name += "/"
			header.Method = zip.Store
			if _, err := zw.CreateHeader(header); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			header.Method = zip.Deflate
			fw, err := zw.CreateHeader(header)
			if err != nil {
				return err
			}
			if err := copyFile(fw, path); err != nil {
				return fmt.Errorf("adding %s: %w", rel, err)
			}
		default:
			return fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), rel)
		}

		entries++
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		return 0, walkErr
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return entries, nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from WalkDir below sourceDir
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(w, f)
	return err
}
