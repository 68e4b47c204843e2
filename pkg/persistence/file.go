package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// File stores one file per key in a directory. Writes go to a temporary
// file that is renamed into place, so a crash never leaves a torn value.
type File struct {
	dir    string
	codec  codec.Codec
	logger logger.Logger
	mu     sync.Mutex
}

type FileOption func(f *File)

// WithCodec selects the encoding, models.JSONCodec by default.
func WithCodec(c codec.Codec) FileOption {
	return func(f *File) { f.codec = c }
}

func WithFileLogger(l logger.Logger) FileOption {
	return func(f *File) { f.logger = l }
}

// NewFile creates dir if needed.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	f := &File{dir: dir, codec: models.JSONCodec{}, logger: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+f.codec.Ext())
}

func (f *File) Set(_ context.Context, key string, docs []models.Document) error {
	data, err := models.EncodeDocuments(f.codec, docs)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *File) Get(_ context.Context, key string) ([]models.Document, bool, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path(key))
	f.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	docs, err := decode(f.codec, data, key, f.logger)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
