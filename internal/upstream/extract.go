package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

var (
	torrentIDKeys = []string{"torrent_id", "id", "torrentId"}
	queuedIDKeys  = []string{"queued_id", "queuedId"}
	hashKeys      = []string{"hash", "info_hash", "infoHash"}
	wrapperKeys   = []string{"torrent", "data", "result"}
)

// ExtractHandle pulls a task handle out of a creation response. A torrent id
// beats a queue id, which beats a hash. Each is looked up at the top level
// first and then under the common wrapper objects. A hash found next to an
// id is kept in Handle.Hash.
func ExtractHandle(body []byte) (Handle, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}

	scopes := []object{obj}
	for _, k := range wrapperKeys {
		if inner, ok := obj[k].(map[string]any); ok {
			scopes = append(scopes, inner)
		}
	}

	hash := ""
	for _, scope := range scopes {
		if v, ok := scope.str(hashKeys...); ok {
			hash = strings.ToLower(v)
			break
		}
	}

	for _, id := range []struct {
		kind HandleKind
		keys []string
	}{
		{KindTorrentID, torrentIDKeys},
		{KindQueuedID, queuedIDKeys},
	} {
		for _, scope := range scopes {
			if v, ok := scope.str(id.keys...); ok {
				return Handle{Kind: id.kind, Value: v, Hash: hash}, nil
			}
		}
	}
	if hash != "" {
		return Handle{Kind: KindHash, Value: hash}, nil
	}

	return Handle{}, ErrUnrecognizedResponse
}

// object is a loosely typed JSON object decoded with json.Number.
type object map[string]any

func decodeObject(body []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("not an object")
	}
	return obj, nil
}

// str returns the first key holding a non-empty string or number.
func (o object) str(keys ...string) (string, bool) {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		case json.Number:
			return v.String(), true
		}
	}
	return "", false
}

func (o object) number(keys ...string) *float64 {
	for _, k := range keys {
		switch v := o[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		}
	}
	return nil
}

func (o object) integer(keys ...string) *int64 {
	for _, k := range keys {
		switch v := o[k].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return &n
			}
			if f, err := v.Float64(); err == nil {
				n := int64(f)
				return &n
			}
		}
	}
	return nil
}

func (o object) boolean(key string) (bool, bool) {
	b, ok := o[key].(bool)
	return b, ok
}

// items unwraps a listing response into its item objects. The list may be the
// body itself or sit under data, items or results; a single object under data
// is treated as a one-item list.
func items(body []byte) ([]object, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	switch v := raw.(type) {
	case []any:
		return toObjects(v), nil
	case map[string]any:
		for _, k := range []string{"data", "items", "results"} {
			switch inner := v[k].(type) {
			case []any:
				return toObjects(inner), nil
			case map[string]any:
				return []object{inner}, nil
			}
		}
		if _, ok := v["data"]; ok {
			return nil, nil
		}
		return []object{v}, nil
	}
	return nil, nil
}

func toObjects(list []any) []object {
	out := make([]object, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
