package segment

// Merge joins consecutive intervals whose gap is shorter than maxGap.
// The input must be sorted by start; it is not modified. Each interval can
// only merge into the one accumulated just before it.
func Merge(intervals []Interval, maxGap int) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	merged := make([]Interval, 0, len(intervals))
	cur := intervals[0]
	for _, next := range intervals[1:] {
		if next.Start-cur.End < maxGap {
			cur.End = max(cur.End, next.End)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}
