package patcher

import (
	"fmt"
	"regexp"
	"strings"
)

// filePathRegex extracts the file path from a '+++ b/...' line. The b/
// prefix is optional since models often drop it.
var filePathRegex = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?(?P<path>\S+)`)

// ExtractPathFromDiff finds the target file path in a raw diff string.
// A diff that deletes its file (+++ /dev/null) has no target path.
func ExtractPathFromDiff(content string) string {
	match := filePathRegex.FindStringSubmatch(content)
	if len(match) < 2 || match[1] == "/dev/null" {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// CorrectDiff returns rawDiff with hunk headers recomputed against source.
func CorrectDiff(source []string, rawDiff, path string) (string, error) {
	return correctDiffHunks(source, rawDiff, path)
}

// Apply applies the hunks of rawDiff to source and returns the new lines.
// Hunks are located by content rather than by their @@ line numbers.
func Apply(source []string, rawDiff string) ([]string, error) {
	hunks := parseDiffToHunks(strings.Split(rawDiff, "\n"))
	if len(hunks) == 0 {
		return nil, fmt.Errorf("diff has no hunks")
	}

	out := append([]string(nil), source...)
	from := 0
	for n, hunk := range hunks {
		var err error
		out, from, err = applyHunk(out, hunk, from)
		if err != nil {
			return nil, fmt.Errorf("hunk %d: %w", n+1, err)
		}
	}
	return out, nil
}

// applyHunk applies one hunk at or after index from. It returns the new
// lines and the index just past the replaced region.
func applyHunk(src, hunk []string, from int) ([]string, int, error) {
	target := getTargetBlock(hunk)
	if len(target) == 0 {
		if len(src) > 0 {
			return nil, 0, fmt.Errorf("hunk has no context to anchor it")
		}
		return addedLines(hunk), len(hunk), nil
	}

	start := matchBlock(src, target, from)
	if start == -1 && from > 0 {
		start = matchBlock(src, target, 0)
	}
	if start == -1 {
		return nil, 0, fmt.Errorf("could not find matching block")
	}

	// Skip hunk lines before the first non-blank source line; only their
	// additions survive.
	var produced []string
	k := 0
	for ; k < len(hunk); k++ {
		line := hunk[k]
		if isSourceLine(line) && strings.TrimSpace(line[1:]) != "" {
			break
		}
		if strings.HasPrefix(line, "+") {
			produced = append(produced, line[1:])
		}
	}

	begin := start - 1
	j := begin
	for ; k < len(hunk); k++ {
		line := hunk[k]
		if strings.HasPrefix(line, "+") {
			produced = append(produced, line[1:])
			continue
		}
		keep := strings.HasPrefix(line, " ")
		want := normalizeLineForMatching(line[1:])
		if want == "" {
			if j < len(src) && normalizeLineForMatching(src[j]) == "" {
				if keep {
					produced = append(produced, src[j])
				}
				j++
			}
			continue
		}
		for j < len(src) && normalizeLineForMatching(src[j]) == "" {
			produced = append(produced, src[j])
			j++
		}
		if j >= len(src) || normalizeLineForMatching(src[j]) != want {
			return nil, 0, fmt.Errorf("hunk diverges from source at line %d", j+1)
		}
		if keep {
			produced = append(produced, src[j])
		}
		j++
	}

	out := make([]string, 0, len(src)-(j-begin)+len(produced))
	out = append(out, src[:begin]...)
	out = append(out, produced...)
	out = append(out, src[j:]...)
	return out, begin + len(produced), nil
}

func addedLines(hunk []string) []string {
	var lines []string
	for _, line := range hunk {
		if strings.HasPrefix(line, "+") {
			lines = append(lines, line[1:])
		}
	}
	return lines
}
