package pfx_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/sokinpui/pfx.go/cli"
	"github.com/sokinpui/pfx.go/internal/backend"
	"github.com/sokinpui/pfx.go/internal/ui"
	"github.com/sokinpui/pfx.go/model"
	"github.com/sokinpui/pfx.go/pfx"
)

const greeterPath = "Sources/Greeter.swift"

const greeterSource = `import Foundation

struct Greeter {
    func greet() -> String {
        return "hi"
    }
}
`

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	p := filepath.Join(root, filepath.FromSlash(greeterPath))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(greeterSource), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newApp(t *testing.T, root string, cfg *cli.Config) *pfx.App {
	t.Helper()
	app, err := pfx.NewAt(root, cfg)
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func greeterResponse(body string) string {
	return "# Greet loudly\n\n`" + greeterPath + "`\n```swift\n" + body + "```\n"
}

func TestRunApplies(t *testing.T) {
	root := newProject(t)
	fixed := strings.Replace(greeterSource, `"hi"`, `"HI"`, 1)

	var prompt string
	summary, err := pfx.Run(context.Background(), "[fix]<file:Greeter.swift> Greet loudly", pfx.Config{
		Root: root,
		Backend: func(ctx context.Context, p string) (string, error) {
			prompt = p
			return greeterResponse(fixed), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Result.Outcome != model.OutcomeApplied {
		t.Fatalf("outcome = %s (%s)", summary.Result.Outcome, summary.Result.Reason)
	}
	if !strings.Contains(prompt, "Greet loudly") {
		t.Errorf("prompt does not carry the request:\n%s", prompt)
	}
	if diff := cmp.Diff([]string{greeterPath + ":5-5"}, summary.Modified); diff != "" {
		t.Errorf("modified mismatch (-want +got):\n%s", diff)
	}
	got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(greeterPath)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != fixed {
		t.Errorf("file content:\n%s", got)
	}
	if code := pfx.ExitCode(summary); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRunRejects(t *testing.T) {
	root := newProject(t)
	called := false
	summary, err := pfx.Run(context.Background(), "[fix]<file:Missing.swift> Nope", pfx.Config{
		Root: root,
		Backend: func(ctx context.Context, p string) (string, error) {
			called = true
			return "", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("backend called for a rejected request")
	}
	if summary.Result.Outcome != model.OutcomeRejected || summary.Result.Code != model.CodeInvalidScope {
		t.Errorf("result = %+v", summary.Result)
	}
	if code := pfx.ExitCode(summary); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRunRequiresBackend(t *testing.T) {
	if _, err := pfx.Run(context.Background(), "[fix] x", pfx.Config{Root: t.TempDir()}); err == nil {
		t.Fatal("expected an error without a backend")
	}
}

func TestParse(t *testing.T) {
	cmd, _, err := pfx.Parse("[review]<dir:Sources> Look around")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Prefix != model.PrefixReview || cmd.Body != "Look around" {
		t.Errorf("cmd = %+v", cmd)
	}
	if _, _, err := pfx.Parse("no prefix here"); err == nil {
		t.Error("expected an error for a line without a prefix")
	}
}

func TestPrintThenComplete(t *testing.T) {
	root := newProject(t)
	var out strings.Builder
	ui.Stdout = &out
	t.Cleanup(func() { ui.Stdout = os.Stdout })

	app := newApp(t, root, &cli.Config{Print: true, Args: []string{"[fix]<file:Greeter.swift> Greet loudly"}})
	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !summary.HandedOff || summary.Dispatch == nil {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.Contains(out.String(), "Greet loudly") {
		t.Errorf("prompt not printed:\n%s", out.String())
	}

	fixed := strings.Replace(greeterSource, `"hi"`, `"HI"`, 1)
	summary, err = app.Complete(context.Background(), greeterResponse(fixed))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Result.Outcome != model.OutcomeApplied {
		t.Fatalf("outcome = %s (%s)", summary.Result.Outcome, summary.Result.Reason)
	}
}

func TestInterruptAndStatus(t *testing.T) {
	root := newProject(t)
	app := newApp(t, root, &cli.Config{})
	app.SetBackend(backend.Func(func(ctx context.Context, d *model.Dispatch) (string, error) {
		return "", backend.ErrHandedOff
	}))

	summary, err := app.Run(context.Background(), "[think]<file:Greeter.swift> What is this?")
	if err != nil {
		t.Fatal(err)
	}
	if !summary.HandedOff {
		t.Fatalf("summary = %+v", summary)
	}

	summary, err = app.Interrupt()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Result.Outcome != model.OutcomeInterrupted {
		t.Fatalf("outcome = %s", summary.Result.Outcome)
	}
	if code := pfx.ExitCode(summary); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}

	status := newApp(t, root, &cli.Config{Status: true})
	summary, err = status.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(summary.Message, "Session: interrupted") {
		t.Errorf("status message:\n%s", summary.Message)
	}
}

func TestInterruptWithoutDispatchIsRejected(t *testing.T) {
	app := newApp(t, newProject(t), &cli.Config{Interrupt: true})
	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Result.Code != model.CodeInvalidState {
		t.Errorf("result = %+v", summary.Result)
	}
}

func TestEmptyChangeLogAndTasks(t *testing.T) {
	root := newProject(t)
	for _, tt := range []struct {
		name string
		cfg  *cli.Config
		want string
	}{
		{"changelog", &cli.Config{ChangeLog: true}, "The change log is empty."},
		{"tasks", &cli.Config{Tasks: true}, "No tasks."},
		{"reset", &cli.Config{Reset: true}, "Session cleared."},
	} {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := newApp(t, root, tt.cfg).Execute(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if summary.Message != tt.want {
				t.Errorf("message = %q, want %q", summary.Message, tt.want)
			}
		})
	}
}

func TestDetailedErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := error(&pfx.DetailedError{Err: base, Stack: []byte("stack")})
	if !errors.Is(err, base) {
		t.Error("DetailedError should unwrap to its cause")
	}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
