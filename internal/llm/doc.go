// Package llm resolves free-text chat messages into structured intents using
// a chat-completions API. Requests are rate limited, retried on transient
// failures, and identical messages are answered from a short-lived cache.
package llm
