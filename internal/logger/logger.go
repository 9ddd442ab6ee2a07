package logger

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RunID is attached to every log line of a run (see New) so log files
// across restarts can be correlated, the same role gcsfuse's
// google/uuid use plays for its own bucket/mount identifiers — the server
// itself is stateless across restarts (§6 "Persisted state: none").
var RunID = uuid.NewString()

// asyncBufSize bounds how many pending log lines the async writer holds
// before it starts dropping them under sustained load.
const asyncBufSize = 4096

// New builds the process-wide logger. When logPath is empty, logs go to
// stderr directly (useful for tests and foreground debugging); otherwise
// output is rotated through lumberjack and written asynchronously so
// logging never blocks a poll thread (§5).
func New(logPath string) (*slog.Logger, func() error) {
	var handler slog.Handler
	var closer func() error = func() error { return nil }

	if logPath == "" {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		lj := &lumberjack.Logger{Filename: logPath, MaxSize: 100, MaxBackups: 5, Compress: true}
		al := NewAsyncLogger(lj, asyncBufSize)
		handler = slog.NewJSONHandler(al, nil)
		closer = al.Close
	}

	logger := slog.New(handler).With("run_id", RunID)
	return logger, closer
}
