package changelog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a title into a lower-case, dash-separated key.
func Slugify(title string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		return "change"
	}
	return slug
}

// Render formats entries as a markdown document.
func Render(entries []model.ChangeLogEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", e.Title)
		fmt.Fprintf(&b, "**Date:** %s  \n", e.Date.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "**Task:** `%s`\n\n", e.Slug)

		if len(e.FilesModified) > 0 {
			b.WriteString("### Files modified\n\n")
			for _, f := range e.FilesModified {
				if f.Range.IsWhole() {
					fmt.Fprintf(&b, "- `%s`\n", f.Path)
				} else {
					fmt.Fprintf(&b, "- `%s` (lines %s)\n", f.Path, f.Range)
				}
			}
			b.WriteString("\n")
		}
		if e.Reasoning != "" {
			fmt.Fprintf(&b, "### Reasoning\n\n%s\n\n", e.Reasoning)
		}
		if len(e.Changes) > 0 {
			b.WriteString("### Changes\n\n")
			for _, c := range e.Changes {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			b.WriteString("\n")
		}
		if e.Notes != "" {
			fmt.Fprintf(&b, "### Notes\n\n%s\n\n", e.Notes)
		}
	}
	return b.String()
}
