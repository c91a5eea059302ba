// Package llm provides an OpenRouter-compatible chat-completions client used
// by the analyze stage.
//
// Every call runs in JSON mode. CompleteJSON returns the raw JSON text and the
// model that produced it; DecodeLLMJSON tolerates code fences and prose around
// the payload.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx responses, empty completions, and
// network timeouts with doubling backoff (base 1s, max 10s, 2 attempts by
// default). Stage-level retries are the scheduler's job, so callers usually
// keep this bound small.
//
// # Error Classification
//
// HTTP 4xx responses other than 408 and 429 are tagged services.ErrInvalidConfig.
// Deadline expiry is tagged services.ErrTimeout. Everything else is
// services.ErrExternalService.
package llm
