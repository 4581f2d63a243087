package lsp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// clientWorkspace is the canonical workspace URI visible to clients.
// Container-side URIs use the session's workspace root instead.
const clientWorkspace = "file:///workspace"

// Transformer rewrites file:// URIs between the client's logical workspace
// and a session's container path, recursively across JSON values.
// ToContainer and ToClient are inverse operations.
type Transformer struct {
	containerRoot string
}

// NewTransformer creates a transformer for the given container-side
// workspace root (e.g. "/lsp-files/SESSION").
func NewTransformer(workspaceRoot string) *Transformer {
	return &Transformer{containerRoot: "file://" + workspaceRoot}
}

// ToContainer rewrites a full protocol message (header block plus JSON body)
// from client URIs to container URIs. If the message cannot be parsed, it is
// returned unchanged.
func (t *Transformer) ToContainer(message string) string {
	return t.rewriteMessage(message, clientWorkspace, t.containerRoot)
}

// ToClient rewrites a full protocol message from container URIs back to
// client URIs. If the message cannot be parsed, it is returned unchanged.
func (t *Transformer) ToClient(message string) string {
	return t.rewriteMessage(message, t.containerRoot, clientWorkspace)
}

// ValueToContainer rewrites URIs inside an arbitrary decoded JSON value.
func (t *Transformer) ValueToContainer(v interface{}) interface{} {
	return rewriteValue(v, clientWorkspace, t.containerRoot)
}

// ValueToClient is the inverse of ValueToContainer.
func (t *Transformer) ValueToClient(v interface{}) interface{} {
	return rewriteValue(v, t.containerRoot, clientWorkspace)
}

func (t *Transformer) rewriteMessage(message, from, to string) string {
	sep := strings.Index(message, headerSeparator)
	if sep == -1 {
		return message
	}

	body := message[sep+len(headerSeparator):]
	if body == "" {
		return message
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return message
	}

	rewritten, err := json.Marshal(rewriteValue(decoded, from, to))
	if err != nil {
		return message
	}

	return fmt.Sprintf("Content-Length: %d%s%s", len(rewritten), headerSeparator, rewritten)
}

// rewriteValue walks objects by key, arrays by index, and checks string
// primitives for an exact prefix match. Everything else is returned unchanged.
func rewriteValue(v interface{}, from, to string) interface{} {
	switch val := v.(type) {
	case string:
		if val == from {
			return to
		}
		if strings.HasPrefix(val, from+"/") {
			return to + strings.TrimPrefix(val, from)
		}
		return val
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = rewriteValue(item, from, to)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = rewriteValue(item, from, to)
		}
		return out
	default:
		return v
	}
}
