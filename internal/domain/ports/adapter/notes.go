package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notes is the gateway's free-form key/value field. The gateway sends an object
// when notes exist and an empty array when none do; both decode here, the
// latter (and null) to a nil map. Non-string values are kept in their printed form.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '[' || bytes.Equal(b, []byte("null")) {
		*n = nil
		return nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
		case string:
			out[k] = x
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	*n = out
	return nil
}
