package monitoring

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
	Logf("test message: %s", "value")
}

func TestOpenLogFile_EmptyPath(t *testing.T) {
	if c := OpenLogFile(LogFileOptions{}); c != nil {
		t.Errorf("expected nil closer for empty path, got %T", c)
	}
}

func TestOpenLogFile_WritesToFile(t *testing.T) {
	prevOut := log.Writer()
	defer log.SetOutput(prevOut)

	path := filepath.Join(t.TempDir(), "bridge.log")
	c := OpenLogFile(LogFileOptions{Path: path, MaxBackups: 1})
	if c == nil {
		t.Fatal("expected closer")
	}
	log.Print("hello rotating file")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	log.SetOutput(&bytes.Buffer{})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello rotating file") {
		t.Errorf("log file missing message, got %q", data)
	}
}
