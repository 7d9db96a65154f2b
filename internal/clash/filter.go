package clash

import "github.com/rogers-f/clash-section-engine/internal/domain"

// Walk visits every record under root depth-first in pre-order.
func Walk(root domain.ClashGroup, visit func(rec domain.ClashRecord)) {
	for _, child := range root.Children {
		switch {
		case child.Record != nil:
			visit(*child.Record)
		case child.Group != nil:
			Walk(*child.Group, visit)
		}
	}
}

// Filter returns the records under root whose status is in allowed, in the
// order they are encountered. Nothing matching yields an empty slice.
func Filter(root domain.ClashGroup, allowed []domain.ClashStatus) []domain.ClashRecord {
	keep := make(map[domain.ClashStatus]bool, len(allowed))
	for _, s := range allowed {
		keep[s] = true
	}
	out := []domain.ClashRecord{}
	Walk(root, func(rec domain.ClashRecord) {
		if keep[rec.Status] {
			out = append(out, rec)
		}
	})
	return out
}

// Count returns the total number of records under root.
func Count(root domain.ClashGroup) int {
	n := 0
	Walk(root, func(domain.ClashRecord) { n++ })
	return n
}
