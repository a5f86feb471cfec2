package asst

import (
	"bytes"
	"encoding/json"
)

// Response is the first acknowledgment argument, kept verbatim.
type Response struct {
	Raw json.RawMessage
}

func newResponse(args []json.RawMessage) Response {
	if len(args) == 0 {
		return Response{Raw: json.RawMessage("null")}
	}
	return Response{Raw: append(json.RawMessage(nil), args[0]...)}
}

// IsEmpty reports a missing or null reply.
func (r Response) IsEmpty() bool {
	t := bytes.TrimSpace(r.Raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Unwrap removes one level of string encoding: the server answers with JSON text
// wrapped in a JSON string. Replies that are not such strings are returned as is.
func (r Response) Unwrap() json.RawMessage {
	var s string
	if err := json.Unmarshal(r.Raw, &s); err == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return r.Raw
}

// Decode unmarshals the unwrapped reply into v.
func (r Response) Decode(v any) error {
	return json.Unmarshal(r.Unwrap(), v)
}

func (r Response) String() string {
	if len(r.Raw) == 0 {
		return "null"
	}
	return string(r.Raw)
}

func (r Response) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}
