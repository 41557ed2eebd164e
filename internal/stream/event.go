// Package stream decodes raw upstream completion bytes into normalised
// events.
//
// The decoder is stateful: bytes may arrive split at arbitrary boundaries,
// so partial lines are buffered across Feed calls and only complete frames
// produce events. Three upstream wire shapes are recognised; all normalise
// into the same Event type.
package stream

import "errors"

// Kind discriminates the payload of an Event.
type Kind int

const (
	// KindContent carries a fragment of assistant output text.
	KindContent Kind = iota
	// KindReasoning carries a fragment of reasoning/thinking text.
	KindReasoning
	// KindUsage carries token accounting, usually on the final frame.
	KindUsage
	// KindError carries a terminal in-band failure.
	KindError
	// KindDone marks normal end of stream.
	KindDone
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindReasoning:
		return "reasoning"
	case KindUsage:
		return "usage"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Usage holds token consumption reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Event is one normalised unit of a completion stream. Events are ephemeral:
// produced and consumed within one streaming session, never persisted.
type Event struct {
	Kind  Kind
	Text  string // content / reasoning fragment
	Usage Usage  // valid when Kind == KindUsage
	Err   error  // valid when Kind == KindError
}

// ErrEmptyStream is returned by Finish when the upstream closed without
// ever producing a content event. It is fatal: partial delivery may already
// be implied, so the call is not retried.
var ErrEmptyStream = errors.New("upstream stream closed without content")
