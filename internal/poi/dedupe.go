package poi

// Dedupe returns records with one entry per ID, keeping the first occurrence
// and the original order. Overlapping tiles return identical hits for the same
// place, so no attribute merging is needed.
func Dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
