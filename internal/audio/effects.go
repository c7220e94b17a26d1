package audio

import "math"

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int {
	var peak int
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Normalize scales b so that its peak sits headroomDB below full scale.
// A silent buffer is returned unchanged (as a copy).
func Normalize(b Buffer, headroomDB float64) Buffer {
	peak := Peak(b.Samples)
	if peak == 0 {
		return b.Clone()
	}
	target := 32767 * math.Pow(10, -headroomDB/20)
	return scale(b, target/float64(peak))
}

// Gain amplifies b by db decibels. Samples that would overflow saturate at
// the int16 limits.
func Gain(b Buffer, db float64) Buffer {
	return scale(b, math.Pow(10, db/20))
}

// ScaleToPeak rescales b so its loudest sample reaches peak. Used to bring a
// denoised buffer back to a known level.
func ScaleToPeak(b Buffer, peak int) Buffer {
	current := Peak(b.Samples)
	if current == 0 {
		return b.Clone()
	}
	return scale(b, float64(peak)/float64(current))
}

func scale(b Buffer, factor float64) Buffer {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = saturate(float64(s) * factor)
	}
	return Buffer{Samples: out, SampleRate: b.SampleRate}
}
