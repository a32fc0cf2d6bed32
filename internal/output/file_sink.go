package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

const filePerm = 0o644

// FileSink writes the now-playing document to a single file.
// Writes truncate and rewrite the file in place; readers may observe a partial document.
type FileSink struct {
	logger *zap.Logger
	fs     afero.Fs
	path   string
}

// NewFileSink creates a sink writing to the configured output path on the OS filesystem
func NewFileSink(logger *zap.Logger, cfg domain.Config) *FileSink {
	return NewFileSinkFs(logger, afero.NewOsFs(), cfg.GetOutputPath())
}

// NewFileSinkFs creates a sink writing to path on fs
func NewFileSinkFs(logger *zap.Logger, fs afero.Fs, path string) *FileSink {
	return &FileSink{
		logger: logger,
		fs:     fs,
		path:   path,
	}
}

// Write overwrites the output file with data
func (s *FileSink) Write(data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	s.logger.Debug("Now playing file written",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)))
	return nil
}

// Remove deletes the output file. A missing file is not an error.
func (s *FileSink) Remove() error {
	err := s.fs.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Now playing file already absent", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}

	s.logger.Info("Now playing file removed", zap.String("path", s.path))
	return nil
}
