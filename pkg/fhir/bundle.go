package fhir

import (
	"encoding/json"
	"fmt"
)

const BundleTypeSearchset = "searchset"

// Bundle is a container of resources. Entries keep their raw JSON so a bundle
// can carry any resource type without this package modelling it.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *EntrySearch    `json:"search,omitempty"`
}

type EntrySearch struct {
	Mode string `json:"mode,omitempty"`
}

func (b *Bundle) GetResourceType() string { return TypeBundle }
func (b *Bundle) GetID() string           { return b.ID }

// NewSearchset wraps resources in a searchset bundle with total set.
func NewSearchset[R Resource](resources []R) (*Bundle, error) {
	total := len(resources)
	b := &Bundle{
		ResourceType: TypeBundle,
		Type:         BundleTypeSearchset,
		Total:        &total,
		Entry:        make([]BundleEntry, 0, len(resources)),
	}
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal %s/%s: %w", r.GetResourceType(), r.GetID(), err)
		}
		b.Entry = append(b.Entry, BundleEntry{
			FullURL:  r.GetResourceType() + "/" + r.GetID(),
			Resource: raw,
			Search:   &EntrySearch{Mode: "match"},
		})
	}
	return b, nil
}

// EntryResourceType returns the resourceType of the i-th entry.
func (b *Bundle) EntryResourceType(i int) string {
	if i < 0 || i >= len(b.Entry) {
		return ""
	}
	return PeekResourceType(b.Entry[i].Resource)
}

// DecodeEntry unmarshals the i-th entry into dst.
func (b *Bundle) DecodeEntry(i int, dst Resource) error {
	if i < 0 || i >= len(b.Entry) {
		return fmt.Errorf("bundle entry %d out of range", i)
	}
	if got := b.EntryResourceType(i); got != dst.GetResourceType() {
		return fmt.Errorf("bundle entry %d is %q, not %q", i, got, dst.GetResourceType())
	}
	return json.Unmarshal(b.Entry[i].Resource, dst)
}
