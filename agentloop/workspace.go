package agentloop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Workspace is the project directory the agent may touch. Every path is
// resolved against the root; relative and absolute paths are accepted as
// long as they stay inside it.
type Workspace struct {
	root     string
	platform string
}

// NewWorkspace creates a Workspace rooted at dir (the current directory when
// empty).
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if evaluated, err := filepath.EvalSymlinks(abs); err == nil {
		abs = evaluated
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory %s is not a directory", abs)
	}
	return &Workspace{
		root:     abs,
		platform: runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
}

// Root returns the absolute project root.
func (w *Workspace) Root() string { return w.root }

// Platform returns the OS/arch pair.
func (w *Workspace) Platform() string { return w.platform }

// Resolve returns the absolute path for p or an error wrapping
// ErrOutsideProject. Symlinks on the existing part of the path are followed
// before the containment check.
func (w *Workspace) Resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !w.contains(candidate) {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, p)
	}

	evaluated, err := evalExisting(candidate)
	if err != nil {
		return "", err
	}
	if !w.contains(evaluated) {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, p)
	}
	return candidate, nil
}

func (w *Workspace) contains(path string) bool {
	return path == w.root || strings.HasPrefix(path, w.root+string(os.PathSeparator))
}

// maxLinkHops bounds dangling symlink chains.
const maxLinkHops = 40

// evalExisting resolves symlinks on the longest existing prefix of path. A
// dangling symlink is followed through its target so a write through it is
// checked against the target's location.
func evalExisting(path string) (string, error) {
	for hops := 0; ; hops++ {
		existing := path
		var rest []string
		for {
			if _, err := os.Lstat(existing); err == nil {
				break
			}
			parent := filepath.Dir(existing)
			if parent == existing {
				return path, nil
			}
			rest = append([]string{filepath.Base(existing)}, rest...)
			existing = parent
		}
		evaluated, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(append([]string{evaluated}, rest...)...), nil
		}
		if hops >= maxLinkHops {
			return "", err
		}

		// EvalSymlinks fails on a dangling link. Resolve the link's
		// directory, then retry from the link target.
		dir, derr := filepath.EvalSymlinks(filepath.Dir(existing))
		if derr != nil {
			return "", err
		}
		target, lerr := os.Readlink(existing)
		if lerr != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		path = filepath.Join(append([]string{filepath.Clean(target)}, rest...)...)
	}
}

// ListFiles returns the sorted entry names of the directory at path, or an
// empty slice when path is absent or not a directory.
func (w *Workspace) ListFiles(path string) ([]string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(resolved) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list_files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func isNotDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileExists reports whether anything exists at path.
func (w *Workspace) FileExists(path string) (bool, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(resolved)
	return err == nil, nil
}

// ReadFile returns Success with the file contents, or Failure when path is
// missing or not a regular file.
func (w *Workspace) ReadFile(path string) (Outcome, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return Outcome{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return Failure("File does not exist or is not a file: " + path), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Outcome{}, fmt.Errorf("read_file: %w", err)
	}
	return Success(string(data)), nil
}

// WriteFile writes contents to path, creating parent directories.
func (w *Workspace) WriteFile(path, contents string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write_file: failed to create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return nil
}
