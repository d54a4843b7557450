// Package runlog owns the per-run log file. Every diagnostic line produced
// while the pipeline works lands in one file, in the order it was emitted.
//
// The sink is a zap logger writing console-encoded lines. Components that only
// need Printf get a *log.Logger bridged onto the same core via Printf().
package runlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created under the output root.
const FileName = "error_log.txt"

// Sink is a run-scoped log destination. Create one with Open and Close it
// when the run ends; nothing is written after Close.
type Sink struct {
	Path  string
	RunID string

	file   *os.File
	logger *zap.Logger
	std    *log.Logger
}

// Open creates (truncating) the log file at path and returns a Sink writing to
// it. The parent directory must exist.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	runID := uuid.NewString()
	logger := New(zapcore.Lock(zapcore.AddSync(f))).With(zap.String("run_id", runID))

	return &Sink{
		Path:   path,
		RunID:  runID,
		file:   f,
		logger: logger,
		std:    zap.NewStdLog(logger),
	}, nil
}

// OpenIn opens FileName inside dir.
func OpenIn(dir string) (*Sink, error) {
	return Open(filepath.Join(dir, FileName))
}

// New builds the console-encoded zap logger used for run logs, writing to ws.
// Tests use it with an in-memory buffer.
func New(ws zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zapcore.DebugLevel)
	return zap.New(core)
}

// Logger returns the structured logger.
func (s *Sink) Logger() *zap.Logger { return s.logger }

// Printf logs one line at info level. It makes *Sink usable wherever a
// Printf-style logger is expected.
func (s *Sink) Printf(format string, v ...any) {
	s.std.Printf(format, v...)
}

// Errorf logs one line at error level.
func (s *Sink) Errorf(format string, v ...any) {
	s.logger.Error(fmt.Sprintf(format, v...))
}

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	_ = s.logger.Sync()
	return s.file.Close()
}
