package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/sokinpui/pfx.go/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecEchoesResponse(t *testing.T) {
	b, err := NewExec("cat", t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Execute(context.Background(), &model.Dispatch{ID: "d1", Prompt: "  # Fix\n\nbody\n"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "# Fix\n\nbody" {
		t.Errorf("response = %q", got)
	}
}

func TestExecErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"missing binary", "pfx-no-such-backend --print"},
		{"non-zero exit", "false"},
		{"empty response", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewExec(tt.command, "", nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := b.Execute(context.Background(), &model.Dispatch{Prompt: "x"}); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := NewExec("   ", "", nil); err == nil {
		t.Error("empty command should be rejected")
	}
}

func TestExecCancellation(t *testing.T) {
	b, err := NewExec("sleep 10", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = b.Execute(ctx, &model.Dispatch{Prompt: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not stop the backend")
	}
}

func TestClipboardHandsOff(t *testing.T) {
	var copied string
	c := &Clipboard{write: func(s string) error { copied = s; return nil }}

	_, err := c.Execute(context.Background(), &model.Dispatch{Prompt: "prompt"})
	if !errors.Is(err, ErrHandedOff) {
		t.Errorf("error = %v, want ErrHandedOff", err)
	}
	if copied != "prompt" {
		t.Errorf("copied = %q", copied)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if b, _ := New("clipboard", "", nil); b == nil {
		t.Fatal("nil backend")
	} else if _, ok := b.(*Clipboard); !ok {
		t.Errorf("New(clipboard) = %T", b)
	}
	if b, _ := New("claude --print", "", nil); b == nil {
		t.Fatal("nil backend")
	} else if _, ok := b.(*Exec); !ok {
		t.Errorf("New(claude --print) = %T", b)
	}
}
