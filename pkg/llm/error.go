// Package llm holds the provider-neutral shapes used to talk to chat models:
// messages, completion requests and responses, and the helpers that pull
// structured answers out of free text.
package llm

import "errors"

var (
	// ErrNoJSON is returned by ExtractJSON when the text holds no JSON object.
	ErrNoJSON = errors.New("llm: no JSON object in model output")

	// ErrEmptyResponse is returned by completers when the provider answered
	// without any content.
	ErrEmptyResponse = errors.New("llm: empty response from model")
)
