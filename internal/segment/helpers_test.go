package segment

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maauso/palabra/internal/audio"
)

const testRate = 44100

// tone returns n samples of a 440 Hz sine with the given peak amplitude.
func tone(n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/testRate))
	}
	return out
}

// constant returns n samples alternating between +v and -v.
func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = v
		} else {
			out[i] = -v
		}
	}
	return out
}

func silence(n int) []int16 {
	return make([]int16, n)
}

func ms(d int) int {
	return audio.DurationToSamples(time.Duration(d)*time.Millisecond, testRate)
}

func concat(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func buffer(t *testing.T, samples []int16) audio.Buffer {
	t.Helper()
	buf, err := audio.NewBuffer(samples, testRate)
	require.NoError(t, err)
	return buf
}
