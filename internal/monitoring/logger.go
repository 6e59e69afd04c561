// Package monitoring holds the process-wide diagnostic logger used by the
// bridge. Components log through Logf so tests can capture or mute output.
package monitoring

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogFileOptions controls size-based rotation of the log file.
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// OpenLogFile points the standard logger at a rotating file and returns the
// writer so the caller can close it on shutdown. An empty path leaves the
// logger on stderr and returns a nil closer.
func OpenLogFile(opts LogFileOptions) io.Closer {
	if opts.Path == "" {
		return nil
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(w)
	return w
}
