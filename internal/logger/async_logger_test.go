package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestAsyncLogger_WriteAndClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	al := NewAsyncLogger(lj, 10)

	fmt.Fprintln(al, "message 1")
	fmt.Fprintln(al, "message 2")
	fmt.Fprintln(al, "message 3")
	require.NoError(t, al.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "message 1\nmessage 2\nmessage 3\n", string(content))
}

func TestAsyncLogger_CloseIsIdempotent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	al := NewAsyncLogger(&lumberjack.Logger{Filename: logPath}, 4)
	require.NoError(t, al.Close())
	require.NoError(t, al.Close())
}
