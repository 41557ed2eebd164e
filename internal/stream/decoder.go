package stream

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alpaca-network/gatewayz-relay/gateways"
)

// Decoder turns raw SSE bytes from one upstream completion stream into
// Events. One Decoder serves exactly one stream; its buffer is never shared.
type Decoder struct {
	buf         []byte
	done        bool
	contentSeen bool
	malformed   int
	log         *slog.Logger
}

// NewDecoder creates a Decoder logging skipped frames to log. A nil log
// discards them.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Decoder{log: log}
}

// Feed consumes the next chunk of upstream bytes and returns the events
// completed by it. Partial trailing lines stay buffered for the next call,
// so splitting the same payload at any byte boundary yields the same event
// sequence.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return events
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		evts, stop := d.decodeLine(line)
		events = append(events, evts...)
		if stop {
			d.done = true
			d.buf = nil
			return events
		}
	}
}

// Finish flushes the decoder at end of input. If the upstream closed
// without a [DONE] sentinel but after delivering content, a synthetic Done
// event is returned; a close with zero content events is ErrEmptyStream.
func (d *Decoder) Finish() ([]Event, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	if !d.contentSeen {
		return nil, ErrEmptyStream
	}
	return []Event{{Kind: KindDone}}, nil
}

// ContentSeen reports whether any content event has been produced.
func (d *Decoder) ContentSeen() bool { return d.contentSeen }

// MalformedFrames returns how many undecodable frames were skipped.
func (d *Decoder) MalformedFrames() int { return d.malformed }

// decodeLine handles one complete SSE line. stop is true on the [DONE]
// sentinel.
func (d *Decoder) decodeLine(line []byte) (events []Event, stop bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	s := strings.TrimSpace(string(line))
	if s == "" {
		return nil, false
	}
	data, ok := strings.CutPrefix(s, "data:")
	if !ok {
		// SSE comment or event/id field; not payload.
		return nil, false
	}
	data = strings.TrimSpace(data)
	if data == gateways.SSEDone {
		return []Event{{Kind: KindDone}}, true
	}

	if !gjson.Valid(data) {
		// A single malformed frame never aborts an otherwise healthy
		// stream.
		d.malformed++
		d.log.Warn("skipping malformed stream frame", "frame", clip(data))
		return nil, false
	}

	events = d.decodeFrame(data)
	for _, e := range events {
		if e.Kind == KindContent {
			d.contentSeen = true
		}
	}
	return events, false
}

// decodeFrame dispatches one JSON frame to its shape parser by structural
// probing: an event-tagged "type" field first, then an OpenAI "choices"
// array, then a generic "output" array.
func (d *Decoder) decodeFrame(data string) []Event {
	if t := gjson.Get(data, "type"); t.Exists() {
		return parseEventTagged(data, t.String())
	}
	if gjson.Get(data, "choices").Exists() {
		return parseOpenAIDelta(data)
	}
	if gjson.Get(data, "output").Exists() {
		return parseGenericOutput(data)
	}
	if msg := gjson.Get(data, "error.message"); msg.Exists() {
		return []Event{{Kind: KindError, Err: &gateways.Error{
			Class:  gateways.ClassFatal,
			Detail: msg.String(),
		}}}
	}
	// Valid JSON in an unrecognised shape; usage may still be present.
	return parseUsage(data)
}

// parseOpenAIDelta handles the OpenAI chat-completion chunk shape:
// choices[].delta.content plus reasoning under reasoning_content or
// reasoning depending on the upstream.
func parseOpenAIDelta(data string) []Event {
	var events []Event
	gjson.Get(data, "choices").ForEach(func(_, choice gjson.Result) bool {
		if r := choice.Get("delta.reasoning_content"); r.String() != "" {
			events = append(events, Event{Kind: KindReasoning, Text: r.String()})
		} else if r := choice.Get("delta.reasoning"); r.String() != "" {
			events = append(events, Event{Kind: KindReasoning, Text: r.String()})
		}
		if c := choice.Get("delta.content"); c.String() != "" {
			events = append(events, Event{Kind: KindContent, Text: c.String()})
		}
		return true
	})
	return append(events, parseUsage(data)...)
}

// parseGenericOutput handles the generic output[].content shape used by
// several aggregator-style upstreams.
func parseGenericOutput(data string) []Event {
	var events []Event
	gjson.Get(data, "output").ForEach(func(_, item gjson.Result) bool {
		if r := item.Get("reasoning"); r.String() != "" {
			events = append(events, Event{Kind: KindReasoning, Text: r.String()})
		}
		if c := item.Get("content"); c.String() != "" {
			events = append(events, Event{Kind: KindContent, Text: c.String()})
		}
		return true
	})
	return append(events, parseUsage(data)...)
}

// parseEventTagged handles the event-tagged responses shape, where the
// frame's "type" names the delta it carries.
func parseEventTagged(data, typ string) []Event {
	switch typ {
	case "response.output_text.delta":
		if t := gjson.Get(data, "delta"); t.String() != "" {
			return []Event{{Kind: KindContent, Text: t.String()}}
		}
	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		if t := gjson.Get(data, "delta"); t.String() != "" {
			return []Event{{Kind: KindReasoning, Text: t.String()}}
		}
	case "response.completed":
		return parseUsage(data)
	case "response.failed", "error":
		detail := gjson.Get(data, "error.message").String()
		if detail == "" {
			detail = gjson.Get(data, "message").String()
		}
		return []Event{{Kind: KindError, Err: &gateways.Error{
			Class:  gateways.ClassFatal,
			Detail: detail,
		}}}
	}
	// Lifecycle frames (response.created, output_item.added, …) carry no
	// text; skip them.
	return nil
}

// parseUsage extracts a usage event when the frame carries token counts,
// looking in both the OpenAI location and the event-tagged response
// envelope.
func parseUsage(data string) []Event {
	for _, path := range []string{"usage", "response.usage"} {
		u := gjson.Get(data, path)
		if !u.Exists() || !u.IsObject() {
			continue
		}
		usage := Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
		if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
			// Event-tagged envelopes use input/output naming.
			usage.PromptTokens = int(u.Get("input_tokens").Int())
			usage.CompletionTokens = int(u.Get("output_tokens").Int())
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		if usage.TotalTokens > 0 {
			return []Event{{Kind: KindUsage, Usage: usage}}
		}
	}
	return nil
}

func clip(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
