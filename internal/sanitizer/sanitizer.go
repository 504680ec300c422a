// Package sanitizer removes subject-identifying extensions from every Patient
// that leaves the service, whether returned directly, inside a Bundle, or as
// a contained resource.
package sanitizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pseudonym-gateway/pkg/fhir"
)

var strippedElements = []string{"extension", "modifierExtension"}

// Sanitize returns a copy of r with Patient extensions removed. Resources
// that are neither Patient nor Bundle are returned unchanged.
func Sanitize(r fhir.Resource) (fhir.Resource, error) {
	switch v := r.(type) {
	case *fhir.Patient:
		return sanitizePatient(v), nil
	case *fhir.Bundle:
		return sanitizeBundle(v)
	default:
		return r, nil
	}
}

func sanitizePatient(p *fhir.Patient) *fhir.Patient {
	if p == nil {
		return nil
	}
	out := p.Clone()
	out.Extension = []fhir.Extension{}
	out.ModifierExtension = nil
	return out
}

func sanitizeBundle(b *fhir.Bundle) (*fhir.Bundle, error) {
	if b == nil {
		return nil, nil
	}
	out := *b
	out.Entry = make([]fhir.BundleEntry, len(b.Entry))
	for i, e := range b.Entry {
		if len(e.Resource) > 0 {
			clean, err := SanitizeJSON(e.Resource)
			if err != nil {
				return nil, fmt.Errorf("bundle entry %d: %w", i, err)
			}
			e.Resource = clean
		}
		out.Entry[i] = e
	}
	return &out, nil
}

// SanitizeJSON strips Patient extensions from a JSON document. Documents
// without a Patient are returned byte-for-byte unchanged. Invalid JSON is an
// error.
func SanitizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode resource: trailing data")
	}
	if !scrub(doc) {
		return raw, nil
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	return out, nil
}

// scrub walks a decoded resource and reports whether it removed anything.
func scrub(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	changed := false
	switch obj["resourceType"] {
	case fhir.TypePatient:
		for _, k := range strippedElements {
			if _, ok := obj[k]; ok {
				delete(obj, k)
				changed = true
			}
		}
	case fhir.TypeBundle:
		if entries, ok := obj["entry"].([]any); ok {
			for _, e := range entries {
				if entry, ok := e.(map[string]any); ok && scrub(entry["resource"]) {
					changed = true
				}
			}
		}
	}
	if contained, ok := obj["contained"].([]any); ok {
		for _, c := range contained {
			if scrub(c) {
				changed = true
			}
		}
	}
	return changed
}
