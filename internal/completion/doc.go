// Package completion sends JSON-mode chat completion requests to an
// OpenAI-compatible endpoint.
//
// The client retries rate limits, server errors and timeouts with capped
// exponential backoff, and reports empty model output as an error instead
// of returning an empty string.
package completion
