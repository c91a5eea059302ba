package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeLLMJSON unmarshals a model reply into target. Besides bare JSON it
// accepts a ```json fenced block and an object or array embedded in prose.
func DecodeLLMJSON(content string, target any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("empty payload")
	}
	var firstErr error
	for _, candidate := range jsonCandidates(content) {
		err := json.Unmarshal([]byte(candidate), target)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return fmt.Errorf("%w (payload snippet: %s)", firstErr, snippet(content))
}

// jsonCandidates lists distinct substrings of content that may hold the
// payload, most literal first.
func jsonCandidates(content string) []string {
	out := []string{content}
	add := func(s string) {
		s = strings.TrimSpace(s)
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		if s != "" {
			out = append(out, s)
		}
	}
	body := unfence(content)
	add(body)
	for _, delims := range []string{"{}", "[]"} {
		start := strings.IndexByte(body, delims[0])
		end := strings.LastIndexByte(body, delims[1])
		if start >= 0 && end > start {
			add(body[start : end+1])
		}
	}
	return out
}

func unfence(content string) string {
	body, ok := strings.CutPrefix(content, "```")
	if !ok {
		return content
	}
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// snippet collapses whitespace and truncates to 160 runes for error messages.
func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return clean
}
