package extract

import (
	"regexp"
	"strings"

	"slidewright/internal/store"
)

var numberedHeading = regexp.MustCompile(`^\s*(\d+\.(?:\d+\.)*)\s+(.*?)\s*$`)

// knownHeadings are unnumbered section titles common in papers, matched
// case-insensitively against a whole line.
var knownHeadings = map[string]struct{}{
	"abstract":         {},
	"introduction":     {},
	"background":       {},
	"related work":     {},
	"method":           {},
	"methods":          {},
	"methodology":      {},
	"experiments":      {},
	"evaluation":       {},
	"results":          {},
	"discussion":       {},
	"conclusion":       {},
	"conclusions":      {},
	"future work":      {},
	"references":       {},
	"bibliography":     {},
	"acknowledgments":  {},
	"acknowledgements": {},
	"appendix":         {},
}

const maxHeadingLength = 120

const maxHeadingWords = 12

// matchHeading reports whether line is a section heading and returns its
// text and level. Numbered headings get one level per dot; they are ignored
// when numbered is false so numbered reference lists stay in one section.
func matchHeading(line string, numbered bool) (string, int, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > maxHeadingLength {
		return "", 0, false
	}
	if m := numberedHeading.FindStringSubmatch(trimmed); numbered && m != nil {
		heading := strings.TrimSpace(m[2])
		if heading == "" || !startsWithLetter(heading) || len(strings.Fields(heading)) > maxHeadingWords {
			return "", 0, false
		}
		level := strings.Count(m[1], ".")
		if level < 1 {
			level = 1
		}
		return heading, level, true
	}
	if _, ok := knownHeadings[strings.ToLower(strings.TrimRight(trimmed, ":"))]; ok {
		return strings.TrimRight(trimmed, ":"), 1, true
	}
	return "", 0, false
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
	}
	return false
}

// DetectSections splits page texts into heading-delimited sections. Text
// before the first heading is dropped; pages are numbered from 1.
func DetectSections(pages []string) []store.Section {
	var (
		sections []store.Section
		current  *store.Section
		body     strings.Builder
	)
	closeCurrent := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		sections = append(sections, *current)
		body.Reset()
	}

	for i, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			numbered := current == nil || !isReferenceHeading(current.Heading)
			if heading, level, ok := matchHeading(line, numbered); ok {
				closeCurrent()
				current = &store.Section{Heading: heading, Level: level, StartPage: i + 1}
				continue
			}
			if current != nil {
				body.WriteString(line)
				body.WriteByte('\n')
			}
		}
	}
	closeCurrent()
	return sections
}

// DetectReferences returns the entries of the last References or
// Bibliography section, one per non-empty line. Lines that continue a
// bracketed or numbered entry are joined to it.
func DetectReferences(sections []store.Section) []string {
	var content string
	for _, section := range sections {
		if isReferenceHeading(section.Heading) {
			content = section.Content
		}
	}
	if content == "" {
		return nil
	}
	var refs []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(refs) > 0 && !startsReference(line) {
			refs[len(refs)-1] += " " + line
			continue
		}
		refs = append(refs, line)
	}
	return refs
}

func isReferenceHeading(heading string) bool {
	switch strings.ToLower(heading) {
	case "references", "bibliography":
		return true
	}
	return false
}

var referenceStart = regexp.MustCompile(`^(\[\d+\]|\d+\.\s)`)

func startsReference(line string) bool {
	return referenceStart.MatchString(line)
}
