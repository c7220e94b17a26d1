package segment

import (
	"fmt"

	"github.com/maauso/palabra/internal/audio"
)

// Split segments buf with a threshold of p.OffsetDB below the buffer's own
// loudness. See SplitAt for the pipeline.
func Split(buf audio.Buffer, p Params) (Result, error) {
	return SplitAt(buf, RelativeThreshold(buf.Samples, p.OffsetDB), p)
}

// SplitAt runs the segmentation pipeline on buf with a fixed threshold:
//
//   - the whole-utterance clip is buf trimmed directly, independent of
//     detection;
//   - letter clips are detected, merged, trimmed one by one and filtered
//     by p.MinSegment, then numbered 1..n in start order.
//
// An empty buffer yields a zero-length whole clip and no letters.
func SplitAt(buf audio.Buffer, threshold float64, p Params) (Result, error) {
	n, err := p.toSamples(buf.SampleRate)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		LoudnessDB:  Loudness(buf.Samples),
		ThresholdDB: threshold,
	}

	wholeIv, err := Trim(buf.Samples, Interval{Start: 0, End: buf.Len()}, threshold, n.margin)
	if err != nil {
		return Result{}, err
	}
	if res.Whole, err = newSegment(buf, 0, wholeIv); err != nil {
		return Result{}, err
	}

	raw, err := DetectNonSilent(buf.Samples, n.window, n.minSilence, threshold)
	if err != nil {
		return Result{}, err
	}
	merged := Merge(raw, n.mergeGap)
	res.Candidates = len(merged)

	for _, iv := range merged {
		trimmed, err := Trim(buf.Samples, iv, threshold, n.margin)
		if err != nil {
			return Result{}, err
		}
		if trimmed.Len() < n.minSegment {
			res.Discarded++
			continue
		}
		seg, err := newSegment(buf, len(res.Letters)+1, trimmed)
		if err != nil {
			return Result{}, err
		}
		res.Letters = append(res.Letters, seg)
	}

	return res, nil
}

func newSegment(buf audio.Buffer, index int, iv Interval) (Segment, error) {
	clip, err := buf.Slice(iv.Start, iv.End)
	if err != nil {
		return Segment{}, fmt.Errorf("segment %d: %w", index, err)
	}
	return Segment{Index: index, Interval: iv, Audio: clip}, nil
}
