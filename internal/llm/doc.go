// Package llm classifies and extracts fund announcements with a language model.
// It supports Anthropic and OpenAI providers behind a single Client interface,
// with shared retry and token-bucket rate limiting.
package llm
