package event

import "testing"

func TestDecodeSnakeCaseAndCamelCase(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Type
	}{
		{"snake tool start", `{"type":"tool_execution_start","tool_call_id":"t1","tool_name":"grep"}`, TypeToolExecutionStart},
		{"camel tool start", `{"type":"tool_execution_start","toolCallId":"t1","toolName":"grep"}`, TypeToolExecutionStart},
		{"session", `{"type":"session","session_id":"abc"}`, TypeSession},
		{"agent start", `{"type":"agent_start"}`, TypeAgentStart},
		{"unknown", `{"type":"something_new","foo":"bar"}`, Type("something_new")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Decode([]byte(tc.line))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if e.EventType() != tc.want {
				t.Fatalf("got type %q, want %q", e.EventType(), tc.want)
			}
		})
	}
}

func TestDecodeToolExecutionStartDualKeys(t *testing.T) {
	e, err := Decode([]byte(`{"type":"tool_execution_start","toolCallId":"x9","toolName":"bash","args":{"cmd":"ls"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	start, ok := e.(ToolExecutionStart)
	if !ok {
		t.Fatalf("got %T, want ToolExecutionStart", e)
	}
	if start.ToolCallID != "x9" || start.ToolName != "bash" {
		t.Fatalf("unexpected fields: %+v", start)
	}
	if len(start.Args) == 0 {
		t.Fatalf("expected args to be preserved raw")
	}
}

func TestDecodeUnknownTypeIsNotAnError(t *testing.T) {
	e, err := Decode([]byte(`{"type":"future_event","payload":42}`))
	if err != nil {
		t.Fatalf("Decode should tolerate unrecognised types, got err: %v", err)
	}
	if u, ok := e.(Unknown); !ok || u.Type != "future_event" {
		t.Fatalf("expected Unknown{future_event}, got %#v", e)
	}
}

func TestDecodeMalformedLineIsAnError(t *testing.T) {
	if _, err := Decode([]byte(`not json at all`)); err == nil {
		t.Fatalf("expected an error for non-JSON input")
	}
}

func TestDecodeTurnEndWithToolResults(t *testing.T) {
	line := `{"type":"turn_end","message":"did the thing","tool_results":[
		{"tool_call_id":"t1","tool_name":"grep","result":"3 matches","is_error":false},
		{"toolCallId":"t2","toolName":"bash","result":"exit 1","isError":true}
	]}`
	e, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	te, ok := e.(TurnEnd)
	if !ok {
		t.Fatalf("got %T, want TurnEnd", e)
	}
	if te.Message != "did the thing" {
		t.Fatalf("unexpected message: %q", te.Message)
	}
	if len(te.ToolResults) != 2 {
		t.Fatalf("expected 2 tool results, got %d", len(te.ToolResults))
	}
	if te.ToolResults[1].ToolCallID != "t2" || !te.ToolResults[1].IsError {
		t.Fatalf("camelCase tool result not decoded correctly: %+v", te.ToolResults[1])
	}
}

func TestDecodeMessageUpdateTextDelta(t *testing.T) {
	line := `{"type":"message_update","assistant_message_event":{"type":"text_delta","content_index":0,"delta":"hel"}}`
	e, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	delta, ok := TextDelta(e)
	if !ok {
		t.Fatalf("expected a text delta to be present")
	}
	if delta != "hel" {
		t.Fatalf("got delta %q, want %q", delta, "hel")
	}
}

func TestDecodeMessageUpdateCamelCaseEnvelope(t *testing.T) {
	line := `{"type":"message_update","assistantMessageEvent":{"type":"text_delta","contentIndex":1,"delta":"lo"}}`
	e, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	mu := e.(MessageUpdate)
	if mu.AssistantMessageEvent.ContentIndex != 1 {
		t.Fatalf("got content index %d, want 1", mu.AssistantMessageEvent.ContentIndex)
	}
}

func TestTextDeltaIgnoresNonTextInnerEvents(t *testing.T) {
	line := `{"type":"message_update","assistant_message_event":{"type":"thinking_delta","content_index":0,"delta":"hm"}}`
	e, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := TextDelta(e); ok {
		t.Fatalf("thinking_delta must not be reported as a text delta")
	}
}

func TestDecodeToolExecutionEndDefaultsIsErrorFalse(t *testing.T) {
	e, err := Decode([]byte(`{"type":"tool_execution_end","tool_call_id":"t1","tool_name":"grep","result":"ok"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	end := e.(ToolExecutionEnd)
	if end.IsError {
		t.Fatalf("expected IsError to default to false")
	}
}
