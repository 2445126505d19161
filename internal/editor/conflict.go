package editor

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/pfx.go/model"
)

const (
	MarkerCurrent   = "<<<<<<< current"
	MarkerSeparator = "======="
	MarkerProposed  = ">>>>>>> proposed"
)

// Conflict merges proposed into current as conflict blocks. Lines both
// versions share pass through unchanged; every differing region becomes
// one block. It returns the merged lines and the line range of each block.
func Conflict(current, proposed []string) ([]string, []model.LineRange) {
	var merged []string
	var blocks []model.LineRange

	m := difflib.NewMatcher(current, proposed)
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			merged = append(merged, current[op.I1:op.I2]...)
			continue
		}
		start := len(merged) + 1
		merged = append(merged, MarkerCurrent)
		merged = append(merged, current[op.I1:op.I2]...)
		merged = append(merged, MarkerSeparator)
		merged = append(merged, proposed[op.J1:op.J2]...)
		merged = append(merged, MarkerProposed)
		blocks = append(blocks, model.LineRange{Start: start, End: len(merged)})
	}
	return merged, blocks
}

// Unresolved returns the ranges of conflict blocks still present in lines.
func Unresolved(lines []string) []model.LineRange {
	var out []model.LineRange
	start := 0
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, MarkerCurrent):
			start = i + 1
		case strings.HasPrefix(line, MarkerProposed) && start > 0:
			out = append(out, model.LineRange{Start: start, End: i + 1})
			start = 0
		}
	}
	return out
}

// ChangedRange is the span of lines in after that differ from before.
// It is the zero range when nothing changed.
func ChangedRange(before, after []string) model.LineRange {
	var r model.LineRange
	m := difflib.NewMatcher(before, after)
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		start, end := op.J1+1, op.J2
		if op.J1 == op.J2 {
			// pure deletion: mark the line where content was removed
			start = min(start, max(len(after), 1))
			end = start
		}
		if r.Start == 0 || start < r.Start {
			r.Start = start
		}
		if end > r.End {
			r.End = end
		}
	}
	if r.Start > 0 && r.End < r.Start {
		r.End = r.Start
	}
	return r
}
