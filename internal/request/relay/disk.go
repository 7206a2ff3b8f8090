package relay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DiskRelay stores files under a local directory, one folder per
// destination and month. Links are built from publicURL and the relative
// path, and the HTTP layer serves the directory.
type DiskRelay struct {
	root      string
	publicURL string
	prefixes  Prefixes
	now       func() time.Time
	logger    *zap.Logger
}

// NewDiskRelay returns a relay writing under root.
func NewDiskRelay(root, publicURL string, prefixes Prefixes, logger *zap.Logger) *DiskRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskRelay{root: root, publicURL: publicURL, prefixes: prefixes, now: time.Now, logger: logger}
}

// Root is the directory files are written under.
func (r *DiskRelay) Root() string { return r.root }

func (r *DiskRelay) Store(ctx context.Context, up Upload, dest Destination) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prefix, err := r.prefixes.Prefix(dest)
	if err != nil {
		return "", err
	}

	now := r.now()
	rel := filepath.ToSlash(filepath.Join(prefix, fmt.Sprintf("%d/%02d", now.Year(), now.Month())))
	dir := filepath.Join(r.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	key := objectKey(rel, up.Filename)
	dst, err := os.Create(filepath.Join(r.root, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	_, err = io.Copy(dst, up.Reader)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("write file: %w", err)
	}

	r.logger.Debug("File stored", zap.String("path", key), zap.String("destination", string(dest)))
	return joinURL(r.publicURL, key), nil
}
