package tidepool

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Section is one heading in an extracted document's markdown outline.
type Section struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

var (
	headingRe   = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
)

// ExtractSections parses markdown and returns its heading outline (H1-H6).
// Anchors are URL-safe and deduplicated with numeric suffixes. Headings
// inside fenced code blocks are ignored.
func ExtractSections(markdown string) []Section {
	if markdown == "" {
		return nil
	}

	matches := headingRe.FindAllStringSubmatch(codeBlockRe.ReplaceAllString(markdown, ""), -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(matches))
	seen := make(map[string]int)
	for _, match := range matches {
		title := strings.TrimSpace(match[2])
		anchor := anchorFor(title)
		if n := seen[anchor]; n > 0 {
			seen[anchor] = n + 1
			anchor += "-" + strconv.Itoa(n)
		} else {
			seen[anchor] = 1
		}
		sections = append(sections, Section{
			Level:  len(match[1]),
			Title:  title,
			Anchor: anchor,
		})
	}

	return sections
}

// anchorFor lowercases the title, keeps letters and digits, and collapses
// runs of spaces and hyphens into single hyphens.
func anchorFor(title string) string {
	var sb strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			hyphen = false
		case unicode.IsSpace(r) || r == '-':
			if !hyphen && sb.Len() > 0 {
				sb.WriteRune('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
