package analyze

import (
	"fmt"
	"strings"

	"slidewright/internal/store"
)

const baseSystemPrompt = "You are an expert academic research assistant. You summarise papers clearly and concisely and always answer with a single JSON object."

const truncationMarker = "... [text truncated due to length]"

func summarySystemPrompt(style string) string {
	switch style {
	case StyleSimple:
		return baseSystemPrompt + " Use simple, accessible language that a non-expert could understand."
	case StyleBulletPoints:
		return baseSystemPrompt + " Format the summary as bullet points, one per line starting with \"- \", covering the key aspects of the paper."
	default:
		return baseSystemPrompt + " Use a formal academic register."
	}
}

func summaryPrompt(text string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following academic paper in approximately %d words.\n", opts.SummaryLength)
	fmt.Fprintf(&b, "Style: %s\nLanguage: %s\n", opts.SummaryStyle, opts.Language)
	writeFocus(&b, opts.FocusAreas)
	b.WriteString("Respond with JSON of the form {\"summary\": \"...\"}.\n\nPaper text:\n")
	b.WriteString(text)
	return b.String()
}

func keyPointsPrompt(text string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract the %d most important key points from the following academic paper.\n", opts.NumKeyPoints)
	b.WriteString("For each key point give the content, a category (for example methodology, finding, limitation), ")
	b.WriteString("an importance score from 1 to 10, and the section of the paper where the point is made.\n")
	fmt.Fprintf(&b, "Write the key points in language: %s\n", opts.Language)
	writeFocus(&b, opts.FocusAreas)
	b.WriteString("Respond with JSON of the form {\"key_points\": [{\"content\": \"...\", \"category\": \"...\", \"importance\": 7, \"source_section\": \"...\"}]}.\n\nPaper text:\n")
	b.WriteString(text)
	return b.String()
}

func outlinePrompt(text, summary string, points []store.KeyPoint, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a presentation with at most %d slides based on the following academic paper.\n", opts.MaxSlides)
	b.WriteString("Follow this structure: title slide with paper title and authors, introduction or background, ")
	b.WriteString("research questions, methodology, key results (several slides if needed), discussion, conclusion, key references.\n")
	fmt.Fprintf(&b, "Write the slides in language: %s\n", opts.Language)
	writeFocus(&b, opts.FocusAreas)
	b.WriteString("Respond with JSON of the form {\"slides\": [{\"title\": \"...\", \"bullets\": [\"...\"], \"notes\": \"...\", \"layout\": \"title|content|section\"}]}.\n")
	b.WriteString("Keep bullets short enough for a slide.\n\nSummary:\n")
	b.WriteString(summary)
	b.WriteString("\n\nKey points:\n")
	for _, p := range points {
		fmt.Fprintf(&b, "- %s\n", p.Content)
	}
	b.WriteString("\nPaper text:\n")
	b.WriteString(text)
	return b.String()
}

func writeFocus(b *strings.Builder, areas []string) {
	if len(areas) > 0 {
		fmt.Fprintf(b, "Focus on these areas: %s\n", strings.Join(areas, ", "))
	}
}

// paperText prepares the prompt body: a section outline followed by the
// full text, truncated to limit characters.
func paperText(ext *store.Extraction, limit int) string {
	var b strings.Builder
	if ext.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", ext.Title)
	}
	if ext.Metadata.Author != "" {
		fmt.Fprintf(&b, "Authors: %s\n", ext.Metadata.Author)
	}
	if len(ext.Sections) > 0 {
		b.WriteString("Sections:\n")
		for _, s := range ext.Sections {
			fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", max(s.Level-1, 0)), s.Heading)
		}
	}
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(ext.Text, "\f", "\n\n"))
	text := b.String()
	if limit > 0 && len(text) > limit {
		cut := limit
		for cut > 0 && !utf8RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + truncationMarker
	}
	return text
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
