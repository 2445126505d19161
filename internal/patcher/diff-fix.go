package patcher

import (
	"fmt"
	"strings"
)

// getTargetBlock creates a search pattern from a diff hunk: the non-blank
// lines that must already exist in the source (context and removed lines).
func getTargetBlock(hunk []string) []string {
	var block []string
	for _, line := range hunk {
		if !isSourceLine(line) {
			continue
		}
		if content := line[1:]; strings.TrimSpace(content) != "" {
			block = append(block, content)
		}
	}
	return block
}

func isSourceLine(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")
}

// normalizeLineForMatching trims the line and collapses internal whitespace.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock finds the 1-based line in source where block starts, looking
// at lines from index `from` onward. Blank lines are ignored on both sides
// and whitespace is normalized, so reindented or reflowed hunks still match.
// It returns -1 if the block is not found.
func matchBlock(source, block []string, from int) int {
	if len(block) == 0 {
		return -1
	}

	normalizedBlock := make([]string, len(block))
	for i, line := range block {
		normalizedBlock[i] = normalizeLineForMatching(line)
	}

	var filteredSource []string
	var originalLineNumbers []int
	for i := from; i < len(source); i++ {
		if normalizedLine := normalizeLineForMatching(source[i]); normalizedLine != "" {
			filteredSource = append(filteredSource, normalizedLine)
			originalLineNumbers = append(originalLineNumbers, i+1)
		}
	}

	for i := 0; i <= len(filteredSource)-len(normalizedBlock); i++ {
		match := true
		for j := range normalizedBlock {
			if filteredSource[i+j] != normalizedBlock[j] {
				match = false
				break
			}
		}
		if match {
			return originalLineNumbers[i]
		}
	}
	return -1
}

func buildHunkHeader(oldStart, oldLines, newStart, newLines int) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldLines, newStart, newLines)
}

// parseDiffToHunks splits a unified diff into hunk bodies, dropping file
// headers and the @@ lines themselves.
func parseDiffToHunks(diffLines []string) [][]string {
	var hunks [][]string
	var currentHunk []string

	for _, line := range diffLines {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			continue
		}
		if strings.HasPrefix(line, "@@") {
			if h := trimTrailingBlankContext(currentHunk); len(h) > 0 {
				hunks = append(hunks, h)
			}
			currentHunk = nil
		} else if line == "" {
			// an empty context line whose leading space was stripped
			currentHunk = append(currentHunk, " ")
		} else if strings.HasPrefix(line, "+") || isSourceLine(line) {
			currentHunk = append(currentHunk, line)
		}
	}
	if h := trimTrailingBlankContext(currentHunk); len(h) > 0 {
		hunks = append(hunks, h)
	}
	return hunks
}

func trimTrailingBlankContext(hunk []string) []string {
	for len(hunk) > 0 && hunk[len(hunk)-1] == " " {
		hunk = hunk[:len(hunk)-1]
	}
	return hunk
}

func countHunk(hunk []string) (add, remove, context int) {
	for _, line := range hunk {
		switch {
		case strings.HasPrefix(line, "+"):
			add++
		case strings.HasPrefix(line, "-"):
			remove++
		}
	}
	return add, remove, len(hunk) - add - remove
}

// correctDiffHunks rewrites the @@ headers of rawDiff so their line numbers
// match sourceLines.
func correctDiffHunks(sourceLines []string, rawDiff, path string) (string, error) {
	hunks := parseDiffToHunks(strings.Split(rawDiff, "\n"))
	if len(hunks) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	lineDiffOffset := 0
	for _, hunk := range hunks {
		addCount, removeCount, contextCount := countHunk(hunk)
		oldLines := contextCount + removeCount
		newLines := contextCount + addCount

		oldStart := 0
		if target := getTargetBlock(hunk); len(target) > 0 {
			oldStart = matchBlock(sourceLines, target, 0)
			if oldStart == -1 {
				return "", fmt.Errorf("could not find matching block for a hunk in %s", path)
			}
		} else if len(sourceLines) > 0 {
			return "", fmt.Errorf("hunk in %s has no context to anchor it", path)
		}

		newStart := oldStart + lineDiffOffset
		if oldStart == 0 && newLines > 0 {
			newStart = 1
		}
		b.WriteString(buildHunkHeader(oldStart, oldLines, newStart, newLines))
		for _, line := range hunk {
			b.WriteString(line + "\n")
		}
		lineDiffOffset += newLines - oldLines
	}
	return b.String(), nil
}
