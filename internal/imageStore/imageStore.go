package imageStore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const DefaultSpriteDir = "sprites"

type Config struct {
	BaseDir   string // upload root, source image paths are resolved against it
	SpriteDir string // composites are written to BaseDir/SpriteDir
	URLPrefix string // public URL of BaseDir, e.g. "/uploads"
	Logger    *logrus.Logger
}

// FileStore implements image storage on the local filesystem.
type FileStore struct {
	config Config
	log    *logrus.Logger
}

func NewFileStore(config Config) (*FileStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("image store: base dir is empty")
	}
	if config.SpriteDir == "" {
		config.SpriteDir = DefaultSpriteDir
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := os.MkdirAll(filepath.Join(config.BaseDir, config.SpriteDir), 0o755); err != nil {
		return nil, fmt.Errorf("image store: mkdir: %w", err)
	}

	return &FileStore{
		config: config,
		log:    config.Logger,
	}, nil
}

// WriteImage writes data to BaseDir/SpriteDir/suggestedName through a
// temporary file so readers never see a partially written image.
func (s *FileStore) WriteImage(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if suggestedName == "" || suggestedName != filepath.Base(suggestedName) || strings.HasPrefix(suggestedName, ".") {
		return "", fmt.Errorf("image store: invalid name %q", suggestedName)
	}

	dir := filepath.Join(s.config.BaseDir, s.config.SpriteDir)
	tmp, err := os.CreateTemp(dir, ".tmp-"+suggestedName+"-*")
	if err != nil {
		return "", fmt.Errorf("image store: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("image store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("image store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("image store: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("image store: chmod: %w", err)
	}

	target := filepath.Join(dir, suggestedName)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("image store: rename: %w", err)
	}

	locator := s.URL(suggestedName)
	s.log.WithFields(logrus.Fields{
		"path":  target,
		"url":   locator,
		"bytes": len(data),
	}).Debug("sprite image written")

	return locator, nil
}

// URL returns the public locator of a file written by WriteImage.
func (s *FileStore) URL(name string) string {
	prefix := strings.TrimSuffix(s.config.URLPrefix, "/")
	return path.Join("/", prefix, filepath.ToSlash(s.config.SpriteDir), name)
}

// DeleteImage removes a file written by WriteImage. Locators that do not
// point into the sprite directory are rejected.
func (s *FileStore) DeleteImage(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := path.Base(locator)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") || s.URL(name) != locator {
		return fmt.Errorf("image store: %q is not a sprite locator", locator)
	}

	target := filepath.Join(s.config.BaseDir, s.config.SpriteDir, name)
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("image store: remove: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"path": target,
	}).Debug("sprite image removed")
	return nil
}

// ReadImage reads a source image. Relative paths are resolved against BaseDir.
func (s *FileStore) ReadImage(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.config.BaseDir, p)
	}

	data, err := os.ReadFile(filepath.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("image store: read %s: %w", p, err)
	}
	return data, nil
}
