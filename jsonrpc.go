package mcpclient

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the literal protocol version string carried on every message.
const JSONRPCVersion = "2.0"

// RequestID is a JSON-RPC request id. The wire allows either a string or a
// number; RequestID preserves whichever shape it was constructed or decoded
// with rather than coercing both to strings, per the data model in spec §3.
type RequestID struct {
	str    string
	num    int64
	isNum  bool
	isZero bool
}

// NewStringID builds a RequestID carrying a string.
func NewStringID(s string) RequestID {
	return RequestID{str: s}
}

// NewNumberID builds a RequestID carrying an integer.
func NewNumberID(n int64) RequestID {
	return RequestID{num: n, isNum: true}
}

// IsZero reports whether the id was never set, distinguishing a Notification
// (no id) from a Request/Response with an explicit id.
func (r RequestID) IsZero() bool {
	return !r.isNum && r.str == "" && !r.isZero
}

// String renders the id as a string, for use as a map key and in log lines.
func (r RequestID) String() string {
	if r.isNum {
		return fmt.Sprintf("%d", r.num)
	}
	return r.str
}

// MarshalJSON encodes the id as whichever JSON type it was built with.
func (r RequestID) MarshalJSON() ([]byte, error) {
	if r.isNum {
		return json.Marshal(r.num)
	}
	return json.Marshal(r.str)
}

// UnmarshalJSON decodes either a JSON string or a JSON number into the id.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*r = RequestID{str: t}
	case float64:
		*r = RequestID{num: int64(t), isNum: true}
	default:
		return fmt.Errorf("mcpclient: invalid id type %T", v)
	}
	return nil
}

// Error is the JSON-RPC error object carried by a Response.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes, preserved verbatim when a server uses them.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Message is the tagged union described in spec §3: it represents a Request,
// a Notification, or a Response depending on which fields are populated.
// Exactly one of:
//   - Request: ID set, Method set, Params optional.
//   - Notification: ID unset, Method set, Params optional.
//   - Response: ID set, Method unset, exactly one of Result/Error set.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind classifies a decoded Message.
type Kind int

const (
	// KindInvalid marks a message that failed the disambiguation rule.
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

// Kind applies the disambiguation rule from spec §4.1, in order.
func (m Message) Kind() Kind {
	hasResultOrError := m.Result != nil || m.Error != nil
	switch {
	case m.ID != nil && hasResultOrError:
		return KindResponse
	case m.ID != nil && m.Method != "":
		return KindRequest
	case m.ID == nil && m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// NewRequest builds a well-formed Request message.
func NewRequest(id RequestID, method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("mcpclient: marshal request params: %w", err)
	}
	return Message{JSONRPC: JSONRPCVersion, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a well-formed Notification message.
func NewNotification(method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("mcpclient: marshal notification params: %w", err)
	}
	return Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResultResponse builds a well-formed success Response.
func NewResultResponse(id RequestID, result any) (Message, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return Message{}, fmt.Errorf("mcpclient: marshal response result: %w", err)
	}
	return Message{JSONRPC: JSONRPCVersion, ID: &id, Result: raw}, nil
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Encode serializes a Message to its wire representation. The codec is
// stateless and reentrant.
func Encode(m Message) ([]byte, error) {
	if m.JSONRPC == "" {
		m.JSONRPC = JSONRPCVersion
	}
	if m.Kind() == KindResponse && m.Result != nil && m.Error != nil {
		return nil, NewProtocolError("response carries both result and error")
	}
	bs, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: encode message: %w", err)
	}
	return bs, nil
}

// Decode parses wire bytes into a Message and validates it against the
// disambiguation rule and per-variant invariants in spec §4.1.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, NewProtocolError(fmt.Sprintf("malformed json: %v", err))
	}

	switch m.Kind() {
	case KindResponse:
		if (m.Result != nil) == (m.Error != nil) {
			return Message{}, NewProtocolError("response must carry exactly one of result or error")
		}
	case KindRequest, KindNotification:
		// nothing further to validate structurally.
	default:
		return Message{}, NewProtocolError("malformed message")
	}

	return m, nil
}
