package segment

import "math"

// FullScale is the largest representable magnitude of a 16-bit sample.
// Loudness is measured relative to it, so a full-scale square wave is 0 dBFS.
const FullScale = 32768.0

// Silence is the loudness of digital silence (an all-zero or empty window).
// It is negative infinity so that subtracting an offset keeps it there,
// and isLoud never reports it as voiced, whatever the threshold.
var Silence = math.Inf(-1)

// Loudness returns the RMS level of samples in dBFS.
// All-zero and empty slices return Silence.
func Loudness(samples []int16) float64 {
	if len(samples) == 0 {
		return Silence
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	if sum == 0 {
		return Silence
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return 20 * math.Log10(rms/FullScale)
}

// RelativeThreshold returns the cutoff offsetDB below the loudness of samples.
func RelativeThreshold(samples []int16, offsetDB float64) float64 {
	return Loudness(samples) - offsetDB
}

// isLoud reports whether a window measured at db counts as voiced.
// Digital silence is never voiced, even against a Silence threshold.
func isLoud(db, threshold float64) bool {
	return !math.IsInf(db, -1) && db >= threshold
}

// amplitudeFloor converts a dBFS threshold into the sample magnitude a
// single sample has to exceed to count as loud.
func amplitudeFloor(threshold float64) float64 {
	return FullScale * math.Pow(10, threshold/20)
}

func abs16(s int16) float64 {
	v := float64(s)
	if v < 0 {
		return -v
	}
	return v
}
