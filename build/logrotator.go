package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

// RotatingLogWriter is an io.Writer that feeds a rotating log file. Until
// InitLogRotator is called all writes are discarded, which lets the CLI hand
// the writer to the handlers before it knows where the log directory is.
type RotatingLogWriter struct {
	// pipe is the write-end pipe for writing to the log rotator.
	pipe *io.PipeWriter

	rotator *rotator.Rotator
}

// NewRotatingLogWriter creates a new file rotating log writer.
//
// NOTE: `InitLogRotator` must be called to set up log rotation after creating
// the writer.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// newCompressor returns the compressor rolled log files are written with
// and the suffix they get.
func newCompressor(name string) (rotator.Compressor, string, error) {
	suffix, ok := logCompressors[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown log compressor: %v", name)
	}

	if name == Zstd {
		c, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create zstd "+
				"compressor: %w", err)
		}

		return c, suffix, nil
	}

	return gzip.NewWriter(nil), suffix, nil
}

// InitLogRotator sets up the rotator writing to logFile. Rolled files are
// compressed into the same directory. The writer must be closed with Close
// once logging is done.
func (r *RotatingLogWriter) InitLogRotator(cfg *FileLoggerConfig,
	logFile string) error {

	compressor, suffix, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// The rotator threshold is in KB, the config's in MB.
	r.rotator, err = rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	r.rotator.SetCompressor(compressor, suffix)

	// A failing rotator, for example on a full disk, must not take the
	// process down with it.
	pr, pw := io.Pipe()
	go func() {
		if err := r.rotator.Run(pr); err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()
	r.pipe = pw

	return nil
}

// Write writes the byte slice to the log rotator, if present.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.rotator != nil {
		return r.rotator.Write(b)
	}

	return len(b), nil
}

// Close closes the pipe feeding the rotator and then the rotator itself, if
// they have already been created.
func (r *RotatingLogWriter) Close() error {
	if r.pipe != nil {
		_ = r.pipe.Close()
	}

	if r.rotator != nil {
		return r.rotator.Close()
	}

	return nil
}
