// Package event defines the closed set of JSON events the pi agent
// subprocess may emit on its standard output, one object per line.
//
// The agent's schema mixes snake_case and camelCase key spellings across
// fields (and sometimes within the same event), so every decode path here
// goes through rawFields, which looks a value up under any of several
// candidate spellings rather than relying on a single struct tag.
package event

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of event. Unknown values are preserved, not
// rejected — the wire format is externally evolving (spec.md §4.1, §6).
type Type string

const (
	TypeSession           Type = "session"
	TypeAgentStart         Type = "agent_start"
	TypeAgentEnd           Type = "agent_end"
	TypeTurnStart          Type = "turn_start"
	TypeTurnEnd            Type = "turn_end"
	TypeMessageStart       Type = "message_start"
	TypeMessageEnd         Type = "message_end"
	TypeMessageUpdate      Type = "message_update"
	TypeToolExecutionStart  Type = "tool_execution_start"
	TypeToolExecutionUpdate Type = "tool_execution_update"
	TypeToolExecutionEnd    Type = "tool_execution_end"
)

// InnerType identifies the kind of nested assistantMessageEvent carried by
// a message_update event.
type InnerType string

const (
	InnerThinkingStart  InnerType = "thinking_start"
	InnerThinkingDelta  InnerType = "thinking_delta"
	InnerThinkingEnd    InnerType = "thinking_end"
	InnerTextStart      InnerType = "text_start"
	InnerTextDelta      InnerType = "text_delta"
	InnerTextEnd        InnerType = "text_end"
	InnerToolCallStart  InnerType = "toolcall_start"
	InnerToolCallDelta  InnerType = "toolcall_delta"
	InnerToolCallEnd    InnerType = "toolcall_end"
)

// Event is implemented by every concrete event variant. It is a plain
// value type (no pointers to mutable shared state), so instances are safe
// to pass to multiple observers concurrently (spec.md §3, "Ownership").
type Event interface {
	EventType() Type
}

// Session carries session metadata. Semantically ignored by the driver,
// but must parse (spec.md §4.1).
type Session struct {
	SessionID string `json:"session_id"`
	Raw       map[string]any `json:"-"`
}

func (Session) EventType() Type { return TypeSession }

// AgentStart brackets the whole run.
type AgentStart struct{}

func (AgentStart) EventType() Type { return TypeAgentStart }

// AgentEnd brackets the whole run.
type AgentEnd struct{}

func (AgentEnd) EventType() Type { return TypeAgentEnd }

// ToolResult is one entry of a TurnEnd's tool_results array.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

// TurnStart brackets one reasoning/tool cycle.
type TurnStart struct{}

func (TurnStart) EventType() Type { return TypeTurnStart }

// TurnEnd brackets one reasoning/tool cycle and carries its message and
// any tool results produced during it.
type TurnEnd struct {
	Message     string       `json:"message"`
	ToolResults []ToolResult `json:"tool_results"`
}

func (TurnEnd) EventType() Type { return TypeTurnEnd }

// MessageStart brackets an assistant message.
type MessageStart struct{}

func (MessageStart) EventType() Type { return TypeMessageStart }

// MessageEnd brackets an assistant message.
type MessageEnd struct{}

func (MessageEnd) EventType() Type { return TypeMessageEnd }

// AssistantMessageEvent is the nested payload of a MessageUpdate event.
// ContentIndex identifies which content block (text run, thinking run,
// tool call) this event refers to; Delta carries incremental text for
// *_delta variants; Content carries the full text for some *_end variants
// (the driver must not rely on this being present — spec.md §4.2 step 4a).
type AssistantMessageEvent struct {
	Type         InnerType `json:"type"`
	ContentIndex int       `json:"content_index"`
	Delta        string    `json:"delta,omitempty"`
	Content      string    `json:"content,omitempty"`
}

// MessageUpdate carries one incremental update to an in-flight assistant
// message: a thinking/text/tool-call start, delta, or end.
type MessageUpdate struct {
	AssistantMessageEvent AssistantMessageEvent `json:"assistant_message_event"`
}

func (MessageUpdate) EventType() Type { return TypeMessageUpdate }

// ToolExecutionStart marks the beginning of a tool invocation.
type ToolExecutionStart struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
}

func (ToolExecutionStart) EventType() Type { return TypeToolExecutionStart }

// ToolExecutionUpdate carries a partial tool result while it is still running.
type ToolExecutionUpdate struct {
	ToolCallID    string `json:"tool_call_id"`
	ToolName      string `json:"tool_name"`
	PartialResult string `json:"partial_result,omitempty"`
	IsError       bool   `json:"is_error"`
}

func (ToolExecutionUpdate) EventType() Type { return TypeToolExecutionUpdate }

// ToolExecutionEnd marks the completion of a tool invocation.
type ToolExecutionEnd struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result,omitempty"`
	IsError    bool   `json:"is_error"`
}

func (ToolExecutionEnd) EventType() Type { return TypeToolExecutionEnd }

// Unknown is returned for any "type" value outside the recognised set.
// Per spec.md §4.1 and §6, an unrecognised type must never be treated as
// a parse error — it is simply not actionable by this driver.
type Unknown struct {
	Type Type
}

func (u Unknown) EventType() Type { return u.Type }

// envelope is the minimal shape every event line must satisfy: a string
// "type" discriminator. Everything else is decoded per-variant below.
type envelope struct {
	Type Type `json:"type"`
}

// rawFields decodes a JSON object into a field->raw-value map so callers
// can look a value up under several candidate key spellings. This is the
// mechanism behind dual snake_case/camelCase acceptance (spec.md §4.1,
// §9 "Dual key-spelling deserialization"): rather than one global rename
// strategy, each field tries its own list of spellings, because the
// upstream schema does not follow one convention consistently.
func rawFields(data []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func pickString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
		}
	}
	return ""
}

func pickBool(m map[string]json.RawMessage, def bool, keys ...string) bool {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var b bool
			if json.Unmarshal(raw, &b) == nil {
				return b
			}
		}
	}
	return def
}

func pickInt(m map[string]json.RawMessage, keys ...string) int {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var n int
			if json.Unmarshal(raw, &n) == nil {
				return n
			}
		}
	}
	return 0
}

func pickRaw(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			return raw
		}
	}
	return nil
}

// Decode parses a single line of the agent's stdout into an Event.
//
// Per spec.md §4.2 step 3 ("Parse failure of an individual line is
// non-fatal") the caller — the subprocess driver — is responsible for
// treating a non-nil error here as a log-and-continue condition, not a
// fatal one. Decode returns an error when the line is not a JSON object,
// when "type" is present but not a string, or when a turn_end's
// tool_results or a message_update's assistantMessageEvent has the wrong
// shape. An unrecognised or absent "type" value is not an error (it
// becomes an Unknown event).
func Decode(line []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("event: not a JSON object with a type field: %w", err)
	}

	fields, err := rawFields(line)
	if err != nil {
		return nil, fmt.Errorf("event: decoding fields: %w", err)
	}

	switch env.Type {
	case TypeSession:
		return Session{SessionID: pickString(fields, "session_id", "sessionId")}, nil
	case TypeAgentStart:
		return AgentStart{}, nil
	case TypeAgentEnd:
		return AgentEnd{}, nil
	case TypeTurnStart:
		return TurnStart{}, nil
	case TypeTurnEnd:
		return decodeTurnEnd(fields)
	case TypeMessageStart:
		return MessageStart{}, nil
	case TypeMessageEnd:
		return MessageEnd{}, nil
	case TypeMessageUpdate:
		return decodeMessageUpdate(fields)
	case TypeToolExecutionStart:
		return ToolExecutionStart{
			ToolCallID: pickString(fields, "tool_call_id", "toolCallId"),
			ToolName:   pickString(fields, "tool_name", "toolName"),
			Args:       pickRaw(fields, "args"),
		}, nil
	case TypeToolExecutionUpdate:
		return ToolExecutionUpdate{
			ToolCallID:    pickString(fields, "tool_call_id", "toolCallId"),
			ToolName:      pickString(fields, "tool_name", "toolName"),
			PartialResult: pickString(fields, "partial_result", "partialResult"),
			IsError:       pickBool(fields, false, "is_error", "isError"),
		}, nil
	case TypeToolExecutionEnd:
		return ToolExecutionEnd{
			ToolCallID: pickString(fields, "tool_call_id", "toolCallId"),
			ToolName:   pickString(fields, "tool_name", "toolName"),
			Result:     pickString(fields, "result"),
			IsError:    pickBool(fields, false, "is_error", "isError"),
		}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodeTurnEnd(fields map[string]json.RawMessage) (Event, error) {
	te := TurnEnd{
		Message: pickString(fields, "message"),
	}
	if raw := pickRaw(fields, "tool_results", "toolResults"); raw != nil {
		var results []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("event: turn_end tool_results: %w", err)
		}
		for _, r := range results {
			te.ToolResults = append(te.ToolResults, ToolResult{
				ToolCallID: pickString(r, "tool_call_id", "toolCallId"),
				ToolName:   pickString(r, "tool_name", "toolName"),
				Result:     pickString(r, "result"),
				IsError:    pickBool(r, false, "is_error", "isError"),
			})
		}
	}
	return te, nil
}

func decodeMessageUpdate(fields map[string]json.RawMessage) (Event, error) {
	raw := pickRaw(fields, "assistant_message_event", "assistantMessageEvent")
	if raw == nil {
		return MessageUpdate{}, nil
	}
	inner, err := rawFields(raw)
	if err != nil {
		return nil, fmt.Errorf("event: message_update assistantMessageEvent: %w", err)
	}
	return MessageUpdate{
		AssistantMessageEvent: AssistantMessageEvent{
			Type:         InnerType(pickString(inner, "type")),
			ContentIndex: pickInt(inner, "content_index", "contentIndex"),
			Delta:        pickString(inner, "delta"),
			Content:      pickString(inner, "content"),
		},
	}, nil
}

// TextDelta reports the accumulable text delta carried by this event, if
// any, and whether one was present. Only message_update events carrying a
// text_delta inner event contribute text (spec.md §4.2 step 4a).
func TextDelta(e Event) (string, bool) {
	mu, ok := e.(MessageUpdate)
	if !ok {
		return "", false
	}
	if mu.AssistantMessageEvent.Type != InnerTextDelta {
		return "", false
	}
	return mu.AssistantMessageEvent.Delta, true
}
