package remediation

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	moveRetryAttempts = 3
	moveRetryDelay    = 200 * time.Millisecond
	maxSuffixProbes   = 10000
)

// destinationFor maps a library path into the quarantine root, preserving
// the path relative to its library root. Paths outside every configured root
// keep their parent folder (usually the artist) for context.
func (e *Executor) destinationFor(source string) string {
	quarantine := e.cfg.Paths.QuarantineDir
	clean := filepath.Clean(source)
	for _, root := range e.cfg.Paths.LibraryRoots {
		root = filepath.Clean(root)
		if root == "" || root == "." {
			continue
		}
		if clean == root {
			break
		}
		if strings.HasPrefix(clean, root+string(filepath.Separator)) {
			rel := strings.TrimPrefix(clean, root+string(filepath.Separator))
			return filepath.Join(quarantine, rel)
		}
	}
	parent := filepath.Base(filepath.Dir(clean))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Join(quarantine, filepath.Base(clean))
	}
	return filepath.Join(quarantine, parent, filepath.Base(clean))
}

// nextAvailablePath probes numbered suffixes until it finds a path that does
// not exist yet.
func nextAvailablePath(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		return "", err
	}
	for i := 2; i <= maxSuffixProbes; i++ {
		candidate := fmt.Sprintf("%s (%d)", path, i)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted destination slots for %s", path)
}

// moveDir relocates a directory: atomic rename when possible, copy plus
// delete when the destination sits on another filesystem. sizeBytes feeds
// the free-space preflight for the copy fallback.
func moveDir(src, dst string, sizeBytes int64) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination parent: %w", err)
	}
	renameErr := withRetry(func() error { return os.Rename(src, dst) })
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("rename: %w", renameErr)
	}

	if sizeBytes > 0 {
		free, err := freeSpace(filepath.Dir(dst))
		if err == nil && free < uint64(sizeBytes) {
			return fmt.Errorf("destination filesystem has %d bytes free, need %d", free, sizeBytes)
		}
	}
	if err := copyTree(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("copy across filesystems: %w", err)
	}
	if err := withRetry(func() error { return os.RemoveAll(src) }); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// withRetry reruns op a few times when it fails with a busy or not-empty
// condition, which NFS and slow unmounts produce transiently.
func withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < moveRetryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !retryableFS(err) {
			return err
		}
		time.Sleep(moveRetryDelay * time.Duration(attempt+1))
	}
	return err
}

func retryableFS(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EBUSY)
}

// freeSpace reports the bytes available to unprivileged writes on the
// filesystem holding dir.
func freeSpace(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// copyTree duplicates a directory tree, preserving file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	written, err := io.Copy(out, in)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	return nil
}

// dirSize walks a tree and sums regular file sizes.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.Type().IsRegular() {
			if info, err := entry.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
