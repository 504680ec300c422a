package fhir

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Extension carries a single extension value. The value types this service
// writes have named fields; any other value[x] element is kept raw in Values
// so it still matches and survives a round trip.
type Extension struct {
	URL         string `json:"url"`
	ValueUUID   string `json:"valueUuid,omitempty"`
	ValueString string `json:"valueString,omitempty"`
	ValueCode   string `json:"valueCode,omitempty"`
	ValueURI    string `json:"valueUri,omitempty"`

	// Values holds the remaining value[x] elements keyed by element name,
	// e.g. "valueId" or "valueInteger".
	Values map[string]json.RawMessage `json:"-"`
}

// extensionFields is Extension without its methods, to avoid recursing into
// the custom codec.
type extensionFields Extension

var namedValues = map[string]bool{
	"valueUuid":   true,
	"valueString": true,
	"valueCode":   true,
	"valueUri":    true,
}

func (e *Extension) UnmarshalJSON(data []byte) error {
	var fields extensionFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, v := range raw {
		if !strings.HasPrefix(key, "value") || namedValues[key] {
			continue
		}
		if fields.Values == nil {
			fields.Values = make(map[string]json.RawMessage)
		}
		fields.Values[key] = append(json.RawMessage(nil), v...)
	}
	*e = Extension(fields)
	return nil
}

func (e Extension) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(extensionFields(e))
	if err != nil {
		return nil, err
	}
	if len(e.Values) == 0 {
		return base, nil
	}
	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, key := range e.valueKeys() {
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(e.Values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PrimitiveValue returns the extension's primitive value as text, or "" when
// the extension carries no primitive. Complex value types such as
// valueCoding have no primitive value.
func (e Extension) PrimitiveValue() string {
	switch {
	case e.ValueUUID != "":
		return e.ValueUUID
	case e.ValueString != "":
		return e.ValueString
	case e.ValueCode != "":
		return e.ValueCode
	case e.ValueURI != "":
		return e.ValueURI
	}
	for _, key := range e.valueKeys() {
		if v, ok := primitiveText(e.Values[key]); ok {
			return v
		}
	}
	return ""
}

func (e Extension) valueKeys() []string {
	keys := make([]string, 0, len(e.Values))
	for k := range e.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// primitiveText renders a JSON string, number or boolean as FHIR primitive
// text. Numbers keep their lexical form.
func primitiveText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[', 'n':
		return "", false
	default:
		return string(raw), true
	}
}

func cloneExtensions(in []Extension) []Extension {
	if in == nil {
		return nil
	}
	out := make([]Extension, len(in))
	for i, e := range in {
		out[i] = e
		if e.Values != nil {
			out[i].Values = make(map[string]json.RawMessage, len(e.Values))
			for k, v := range e.Values {
				out[i].Values[k] = append(json.RawMessage(nil), v...)
			}
		}
	}
	return out
}
