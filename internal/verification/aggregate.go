package verification

// Aggregate groups findings by category. Each entry counts its findings and
// carries the highest confidence seen. Entries appear in order of first
// occurrence; callers wanting another order sort the result themselves.
func Aggregate(findings []Finding) []DetectedInfo {
	out := make([]DetectedInfo, 0)
	index := make(map[Category]int)

	for _, f := range findings {
		i, ok := index[f.Category]
		if !ok {
			index[f.Category] = len(out)
			out = append(out, DetectedInfo{
				Category:   f.Category,
				Confidence: f.Confidence,
				Count:      1,
			})
			continue
		}

		out[i].Count++
		out[i].Confidence = max(out[i].Confidence, f.Confidence)
	}

	return out
}
