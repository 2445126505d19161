package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToStateDir(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "info", true)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("debug enabled by verbose")
	logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "debug enabled by verbose") {
		t.Errorf("log file missing debug entry:\n%s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(t.TempDir(), "loud", false); err == nil {
		t.Error("expected an error")
	}
}
