// Package analyze implements the analyze stage. Three JSON-mode LLM calls
// produce a summary, a list of key points and a slide outline; the outline
// always opens with a title slide and respects the max_slides option.
//
// Results are cached by a digest of the prompt text and options when a
// cache client is configured, so re-running analyze on an unchanged paper
// does not spend another completion.
package analyze
