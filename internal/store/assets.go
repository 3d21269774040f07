package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/logging"
)

// assetNamePattern matches names produced by Put: a UUID, a role suffix and
// an extension. Anything else is never resolved.
var assetNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}_[a-z0-9-]{1,32}\.[a-z0-9]{1,10}$`)

var disallowedRoleRunes = regexp.MustCompile(`[^a-z0-9-]+`)

// AssetStore keeps immutable binary blobs under a fixed root directory.
type AssetStore struct {
	root   string
	logger logging.Logger
}

// NewAssetStore creates dir if needed and anchors the store at its absolute,
// symlink-free path.
func NewAssetStore(dir string, logger logging.Logger) (*AssetStore, error) {
	root, err := prepareDir(dir)
	if err != nil {
		return nil, fmt.Errorf("asset store: %w", err)
	}
	return &AssetStore{root: root, logger: logging.OrNop(logger)}, nil
}

// Root returns the absolute asset directory.
func (s *AssetStore) Root() string {
	return s.root
}

// Put writes data under a freshly generated name `<uuid>_<role>.<ext>` and
// returns the name. The blob appears atomically.
func (s *AssetStore) Put(ctx context.Context, data []byte, role, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", &apperrors.PersistError{Op: "put asset", Err: fmt.Errorf("asset payload is empty")}
	}
	cleanExt := sanitizeExt(ext)
	if cleanExt == "" {
		return "", &apperrors.PersistError{Op: "put asset", Err: fmt.Errorf("invalid extension %q", ext)}
	}
	cleanRole := strings.Trim(disallowedRoleRunes.ReplaceAllString(strings.ToLower(role), "-"), "-")
	if cleanRole == "" {
		cleanRole = "asset"
	}

	filename := fmt.Sprintf("%s_%s.%s", uuid.NewString(), cleanRole, cleanExt)
	if err := writeFileAtomic(s.root, filename, data, os.Rename); err != nil {
		return "", &apperrors.PersistError{Op: "put asset", Err: err}
	}
	return filename, nil
}

// Remove deletes a stored blob. It is best effort: failures are logged and
// never returned.
func (s *AssetStore) Remove(filename string) {
	path, err := s.Resolve(filename)
	if err != nil {
		s.logger.Warn("Asset %q not removable: %v", filename, err)
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove asset %s: %v", filename, err)
		return
	}
	s.logger.Debug("Removed asset %s", filename)
}

// Resolve maps filename to an absolute path strictly inside the root. Names
// that are not plain generated asset names, that escape the root after
// cleaning, or that do not refer to a regular file yield *errors.NotFoundError.
func (s *AssetStore) Resolve(filename string) (string, error) {
	notFound := &apperrors.NotFoundError{Resource: "asset", Name: filename}

	name := strings.TrimSpace(filename)
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`+"\x00") || filepath.IsAbs(name) {
		return "", notFound
	}
	if !assetNamePattern.MatchString(name) {
		return "", notFound
	}

	path := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", notFound
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", notFound
	}
	return path, nil
}

func sanitizeExt(ext string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if trimmed == "" || len(trimmed) > 10 {
		return ""
	}
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return ""
	}
	return trimmed
}

func prepareDir(dir string) (string, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return "", fmt.Errorf("directory is required")
	}
	if strings.HasPrefix(trimmed, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~/"))
		}
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", trimmed, err)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", trimmed, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", abs, err)
	}
	return resolved, nil
}

// writeFileAtomic writes data to a temp file in dir and renames it onto
// dir/name. The temp file never survives a failure.
func writeFileAtomic(dir, name string, data []byte, rename func(oldpath, newpath string) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := func() error {
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", writeErr)
	}

	if err := rename(tmpPath, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename where the platform
// supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
