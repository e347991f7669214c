package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const dirPerm = 0o750

var errSymlinkLoop = errors.New("symlink loop")

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// copier stages files into the workspace. Symlinks are followed so the
// workspace, and the archive built from it, holds the linked content.
type copier struct {
	ctx       context.Context
	workspace string // resolved; never copied into itself
	// resolved directories currently being copied, to stop on link cycles
	active map[string]bool
}

// copyPath copies src to dst, recursing into directories and following
// symlinks. Existing destinations are never overwritten and nothing inside
// workspace is copied. It returns the number of files copied.
func copyPath(ctx context.Context, src, dst, workspace string) (int, error) {
	resolved, err := filepath.EvalSymlinks(workspace)
	if err != nil {
		return 0, err
	}
	c := &copier{ctx: ctx, workspace: resolved, active: make(map[string]bool)}
	return c.copy(src, dst)
}

func (c *copier) inWorkspace(resolved string) bool {
	rel, err := filepath.Rel(c.workspace, resolved)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *copier) copy(src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	// WalkDir does not descend into a symlinked root, so work on the target.
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return 0, err
	}
	if c.inWorkspace(resolved) {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	if !info.IsDir() {
		if err := copyEntry(c.ctx, src, dst, info); err != nil {
			return 0, err
		}
		return 1, nil
	}

	root := resolved
	if c.active[root] {
		return 0, fmt.Errorf("%w: %s", errSymlinkLoop, src)
	}
	c.active[root] = true
	defer delete(c.active, root)

	copied := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := c.ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.Type()&fs.ModeSymlink != 0 {
			n, err := c.copy(path, target)
			copied += n
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == c.workspace {
				return filepath.SkipDir
			}
			if err := os.Mkdir(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			return nil
		}

		if err := copyEntry(c.ctx, path, target, info); err != nil {
			return err
		}
		copied++
		return nil
	})

	return copied, err
}

func copyEntry(ctx context.Context, src, dst string, info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), src)
	}
	return copyFile(ctx, src, dst, info.Mode().Perm())
}

func copyFile(ctx context.Context, src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // src is below the job's source path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm) //nolint:gosec // dst is inside the workspace
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: in}); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}

	return out.Close()
}
