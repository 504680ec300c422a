// Package index holds enrollment indexes that map extension values to the
// subjects carrying them.
//
// Indexes are additive: entries are never removed, because the resolver
// re-verifies every candidate against the store. Only the ready marker
// expires, which forces a periodic rebuild from a full scan.
//
// An index is complete only for subjects written through a gateway that
// shares it. It must not front a store that other writers modify.
//
// Every Invalidate bumps a generation counter. Rebuild takes the generation
// read before its scan and marks the index ready only if no Invalidate has
// happened since, so a scan that predates a failed index write cannot hide
// the subject it missed.
package index

import (
	"sort"
	"time"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
)

// DefaultTTL bounds how long a rebuild is trusted when no TTL is given.
const DefaultTTL = 5 * time.Minute

func boundedTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// values returns the distinct non-empty extension values of patient.
func values(patient *fhir.Patient) []string {
	if patient == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(patient.Extension))
	out := make([]string, 0, len(patient.Extension))
	for _, ext := range patient.Extension {
		v := ext.PrimitiveValue()
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedIDs(raw []string) []domain.SubjectID {
	sort.Strings(raw)
	ids := make([]domain.SubjectID, len(raw))
	for i, s := range raw {
		ids[i] = domain.SubjectID(s)
	}
	return ids
}
