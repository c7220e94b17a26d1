// Package denoise removes stationary background noise from recordings
// before they are segmented.
package denoise

import (
	"context"
	"errors"

	"github.com/maauso/palabra/internal/audio"
)

// ErrInvalidConfig is returned for unusable gate settings.
var ErrInvalidConfig = errors.New("denoise: invalid configuration")

// Reducer defines the interface for noise reduction.
// Implementations return a new buffer of the same length and sample rate
// and never modify the input.
type Reducer interface {
	Reduce(ctx context.Context, b audio.Buffer) (audio.Buffer, error)
}

// Passthrough is a Reducer that returns a copy of its input.
type Passthrough struct{}

// Reduce implements Reducer.
func (Passthrough) Reduce(ctx context.Context, b audio.Buffer) (audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	return b.Clone(), nil
}

var _ Reducer = Passthrough{}
