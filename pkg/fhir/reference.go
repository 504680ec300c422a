package fhir

import "strings"

// SubjectReference renders a relative Patient reference.
func SubjectReference(id string) Reference {
	return Reference{Reference: TypePatient + "/" + id, Type: TypePatient}
}

// ReferencedID extracts the logical id from a relative or absolute reference
// of the given type ("Patient/1", "https://host/fhir/Patient/1",
// "Patient/1/_history/2"). It returns "" when ref does not point at typ.
func ReferencedID(ref Reference, typ string) string {
	s := ref.Reference
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "/_history/"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return ""
	}
	if parts[len(parts)-2] != typ {
		return ""
	}
	return parts[len(parts)-1]
}
