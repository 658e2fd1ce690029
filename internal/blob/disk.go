package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DiskStorage writes objects to a local directory that the HTTP server
// exposes under urlPrefix.
type DiskStorage struct {
	dir       string
	urlPrefix string
	now       func() time.Time
	logger    *zap.Logger
}

func NewDiskStorage(dir, urlPrefix string, logger *zap.Logger) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob/disk: create %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskStorage{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		now:       time.Now,
		logger:    logger,
	}, nil
}

func (d *DiskStorage) Dir() string { return d.dir }

// Put writes the object as <unixmilli>-<random><basename>.
func (d *DiskStorage) Put(ctx context.Context, obj Object) (string, error) {
	if obj.Body == nil {
		return "", ErrEmptyObject
	}

	name := fmt.Sprintf("%d-%d%s", d.now().UnixMilli(), rand.Intn(1e9), cleanName(obj.Filename))
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob/disk: create: %w", err)
	}

	n, err := io.Copy(f, obj.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("blob/disk: write %s: %w", name, err)
	}

	d.logger.Debug("Stored upload", zap.String("name", name), zap.Int64("bytes", n))
	return path.Join(d.urlPrefix, name), nil
}

func (d *DiskStorage) Delete(_ context.Context, ref string) error {
	name, ok := ref, true
	if d.urlPrefix != "" {
		name, ok = strings.CutPrefix(ref, d.urlPrefix+"/")
	}
	if !ok || name == "" || name != cleanName(name) {
		return fmt.Errorf("%w: %s", ErrForeignRef, ref)
	}
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob/disk: remove %s: %w", name, err)
	}
	d.logger.Debug("Removed upload", zap.String("name", name))
	return nil
}

// cleanName keeps only the final element of a client supplied filename.
func cleanName(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, "/")
	base := path.Base(filename)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
