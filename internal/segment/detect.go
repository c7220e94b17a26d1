package segment

import "fmt"

// DetectNonSilent scans samples in consecutive windows of window samples and
// returns the ordered, non-overlapping intervals whose windows are at least
// threshold dBFS loud.
//
// A run of silent windows shorter than minGap does not close the current
// interval; only a silent run of at least minGap samples does. Intervals end
// at the last loud window, so trailing silence is never included. The final
// window may be shorter than window and is still scanned.
func DetectNonSilent(samples []int16, window, minGap int, threshold float64) ([]Interval, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", ErrInvalidInput, window)
	}
	if minGap <= 0 {
		return nil, fmt.Errorf("%w: minimum gap must be positive, got %d", ErrInvalidInput, minGap)
	}

	var (
		intervals []Interval
		inRun     bool
		runStart  int
		loudEnd   int
		silent    int
	)

	for start := 0; start < len(samples); start += window {
		end := min(start+window, len(samples))

		if isLoud(Loudness(samples[start:end]), threshold) {
			if !inRun {
				inRun = true
				runStart = start
			}
			loudEnd = end
			silent = 0
			continue
		}

		if !inRun {
			continue
		}
		silent += end - start
		if silent >= minGap {
			intervals = append(intervals, Interval{Start: runStart, End: loudEnd})
			inRun = false
			silent = 0
		}
	}

	if inRun {
		intervals = append(intervals, Interval{Start: runStart, End: loudEnd})
	}
	return intervals, nil
}
