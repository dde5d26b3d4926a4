// Package llm translates subtitle text through an OpenAI-compatible chat
// completion API (OpenRouter by default).
//
// Client sends JSON-only chat requests and tolerates the response shapes
// providers actually return: plain content, streaming deltas, legacy text,
// and tool or function call arguments. Replies wrapped in code fences or
// surrounded by prose are unwrapped before decoding.
//
// Translator adapts the client to the translation capability: every batch
// becomes one request asking for {"translations":[...]} with exactly one
// entry per input line.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, network timeouts and empty
// completions with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After is honoured up to the max delay. Context cancellation
// aborts retries immediately.
package llm
