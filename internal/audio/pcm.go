package audio

import (
	"encoding/binary"
	"math"
)

// PCMBytes encodes samples as signed 16-bit little-endian PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// SamplesFromPCM decodes interleaved signed 16-bit little-endian PCM with the
// given channel count into mono samples by averaging channels. A trailing
// partial frame is dropped.
func SamplesFromPCM(data []byte, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	frameSize := 2 * channels
	out := make([]int16, len(data)/frameSize)
	for i := range out {
		frame := data[i*frameSize : (i+1)*frameSize]
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(frame[2*c:])))
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// downmix averages interleaved integer samples of the given bit depth into
// mono 16-bit samples.
func downmix(data []int, channels, bitDepth int) []int16 {
	if channels < 1 {
		channels = 1
	}
	out := make([]int16, len(data)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += to16(data[i*channels+c], bitDepth)
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// to16 rescales a sample of bitDepth bits to the signed 16-bit range.
// 8-bit WAV data is unsigned and is re-centred first.
func to16(v, bitDepth int) int {
	switch {
	case bitDepth == 8:
		return (v - 128) << 8
	case bitDepth > 16:
		return v >> (bitDepth - 16)
	default:
		return v
	}
}

// saturate rounds v and clamps it to the int16 range.
func saturate(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
