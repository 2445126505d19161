package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/pfx.go/model"
)

func newTestModel() Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{ctx: ctx, cancel: cancel, program: &programRef{}, state: stateProcessing}
}

func TestRenderSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary model.Summary
		want    []string
	}{
		{
			name: "applied",
			summary: model.Summary{
				Result:   model.Result{Outcome: model.OutcomeApplied, ChangeLogID: 4},
				Modified: []string{"A.swift:3-5"},
			},
			want: []string{"Applied.", "Modified:", "A.swift:3-5", "Change log entry #4 recorded."},
		},
		{
			name: "rejected",
			summary: model.Summary{Result: model.Result{
				Outcome: model.OutcomeRejected,
				Code:    model.CodeUnknownPrefix,
				Reason:  "unknown prefix \"fx\"",
			}},
			want: []string{"Rejected (UnknownPrefix)"},
		},
		{
			name: "options",
			summary: model.Summary{Result: model.Result{
				Outcome: model.OutcomeInterrupted,
				Reason:  "interrupted by user",
				Options: []model.Option{{Label: "A", Description: "Use weak self"}},
			}},
			want: []string{"Interrupted: interrupted by user", "A) Use weak self", "[doit]"},
		},
		{
			name: "empty",
			want: []string{"Nothing to do."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel()
			m.summary = summaryMsg{tt.summary}
			got := m.renderSummary()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("summary missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestQuitWhileProcessingCancels(t *testing.T) {
	m := newTestModel()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("expected to wait for the run instead of quitting")
	}
	got := next.(Model)
	if got.state != stateCancelling {
		t.Errorf("state = %v, want cancelling", got.state)
	}
	if got.ctx.Err() == nil {
		t.Error("context not cancelled")
	}

	next, cmd = got.Update(summaryMsg{model.Summary{Result: model.Result{Outcome: model.OutcomeInterrupted}}})
	if cmd == nil {
		t.Error("expected quit after the summary arrives")
	}
	if next.(Model).Summary().Result.Outcome != model.OutcomeInterrupted {
		t.Error("summary not recorded")
	}
}

func TestProgressAndError(t *testing.T) {
	m := newTestModel()
	next, _ := m.Update(progressMsg{current: 2, total: 5})
	if view := next.View(); !strings.Contains(view, "2/5") {
		t.Errorf("view = %q", view)
	}
	next, _ = next.Update(errorMsg{errors.New("boom")})
	if err := next.(Model).Err(); err == nil || err.Error() != "boom" {
		t.Errorf("Err() = %v", err)
	}
}
