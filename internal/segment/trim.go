package segment

import "fmt"

// Trim shrinks iv to the span between its first and last samples louder
// than threshold, keeping margin samples on each side. The result never
// grows past the bounds of iv, which makes Trim idempotent.
//
// When no sample in iv exceeds threshold, iv is returned unchanged: a clip
// that is quiet throughout survives as-is.
func Trim(samples []int16, iv Interval, threshold float64, margin int) (Interval, error) {
	if margin <= 0 {
		return Interval{}, fmt.Errorf("%w: margin must be positive, got %d", ErrInvalidInput, margin)
	}
	if iv.Start < 0 || iv.End > len(samples) || iv.Start > iv.End {
		return Interval{}, fmt.Errorf("%w: interval %s outside buffer of %d samples", ErrInvalidInput, iv, len(samples))
	}

	floor := amplitudeFloor(threshold)

	first := -1
	for i := iv.Start; i < iv.End; i++ {
		if abs16(samples[i]) > floor {
			first = i
			break
		}
	}
	if first < 0 {
		return iv, nil
	}

	last := first
	for i := iv.End - 1; i > first; i-- {
		if abs16(samples[i]) > floor {
			last = i
			break
		}
	}

	return Interval{
		Start: max(iv.Start, first-margin),
		End:   min(iv.End, last+1+margin),
	}, nil
}
