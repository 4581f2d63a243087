package lsp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
)

func TestValueToContainerString(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	got := tr.ValueToContainer("file:///workspace/a.dart")
	if got != "file:///sessions/S1/a.dart" {
		t.Errorf("expected container URI, got %v", got)
	}
}

func TestValueToClientInvertsToContainer(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	orig := "file:///workspace/a.dart"
	if got := tr.ValueToClient(tr.ValueToContainer(orig)); got != orig {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestValueExactWorkspaceRoot(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	if got := tr.ValueToContainer("file:///workspace"); got != "file:///sessions/S1" {
		t.Errorf("expected exact root rewrite, got %v", got)
	}
	if got := tr.ValueToClient("file:///sessions/S1"); got != "file:///workspace" {
		t.Errorf("expected exact root inverse, got %v", got)
	}
}

func TestValueUnrelatedStringsUnchanged(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	for _, s := range []string{
		"file:///etc/passwd",
		"file:///workspaces/a.dart",
		"plain text",
		"",
	} {
		if got := tr.ValueToContainer(s); got != s {
			t.Errorf("expected %q unchanged, got %v", s, got)
		}
	}
}

func TestValueNestedRoundTrip(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	var v interface{}
	raw := `{
		"jsonrpc": "2.0",
		"method": "textDocument/definition",
		"params": {
			"textDocument": {"uri": "file:///workspace/lib/a.dart"},
			"position": {"line": 3, "character": 7},
			"related": ["file:///workspace", "file:///other/b.dart", 42, null, true]
		}
	}`
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := tr.ValueToClient(tr.ValueToContainer(v))
	if !reflect.DeepEqual(got, v) {
		t.Errorf("round trip not deep-equal:\nwant %#v\ngot  %#v", v, got)
	}
}

func TestToContainerMessageRewritesBodyAndLength(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	body := `{"uri":"file:///workspace/a.dart"}`
	msg := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	out := tr.ToContainer(msg)

	wantBody := `{"uri":"file:///sessions/S1/a.dart"}`
	want := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(wantBody), wantBody)
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	body := `{"uri":"file:///workspace/a.dart"}`
	msg := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	if got := tr.ToClient(tr.ToContainer(msg)); got != msg {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestUnparseableMessageReturnedUnchanged(t *testing.T) {
	tr := NewTransformer("/sessions/S1")

	for _, msg := range []string{
		"no separator at all",
		"Content-Length: 5\r\n\r\nnot json",
		"Content-Length: 0\r\n\r\n",
	} {
		if got := tr.ToContainer(msg); got != msg {
			t.Errorf("expected %q unchanged, got %q", msg, got)
		}
	}
}
