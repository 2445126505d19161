package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/pfx.go/internal/ui"
)

// SourceProvider reads request lines and backend responses.
type SourceProvider struct {
	stdin         io.Reader
	isPiped       func() bool
	readClipboard func() (string, error)
}

// New creates a SourceProvider over the process stdin and the system
// clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		stdin: os.Stdin,
		isPiped: func() bool {
			stat, err := os.Stdin.Stat()
			return err == nil && (stat.Mode()&os.ModeCharDevice) == 0
		},
		readClipboard: clipboard.ReadAll,
	}
}

// Request returns the request line from args, falling back to stdin or the
// clipboard when no argument is given.
func (sp *SourceProvider) Request(args []string) (string, error) {
	if line := strings.TrimSpace(strings.Join(args, " ")); line != "" {
		return line, nil
	}
	content, err := sp.GetContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
func (sp *SourceProvider) GetContent() (string, error) {
	if sp.isPiped() {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.readClipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}
