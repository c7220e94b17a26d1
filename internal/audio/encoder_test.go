package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"wav", FormatWAV, false},
		{".MP3", FormatMP3, false},
		{"webm", FormatWebM, false},
		{"ogg", FormatOGG, false},
		{"flac", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "."+string(tt.want), got.Ext())
		})
	}
}

func TestDefaultExportOpts(t *testing.T) {
	opts := DefaultExportOpts()
	assert.Equal(t, FormatMP3, opts.Format)
	assert.Equal(t, 192, opts.BitrateKbps)
	assert.False(t, opts.UseFFmpeg)
}

func TestNewEncoder(t *testing.T) {
	t.Run("built-in mp3", func(t *testing.T) {
		enc, err := NewEncoder(ExportOpts{Format: FormatMP3}, nil)
		require.NoError(t, err)
		assert.IsType(t, &ShineEncoder{}, enc)
	})

	t.Run("built-in wav", func(t *testing.T) {
		enc, err := NewEncoder(ExportOpts{Format: FormatWAV}, nil)
		require.NoError(t, err)
		assert.IsType(t, &WAVEncoder{}, enc)
	})

	t.Run("ffmpeg", func(t *testing.T) {
		enc, err := NewEncoder(ExportOpts{Format: FormatOGG, UseFFmpeg: true}, NewFFmpeg(""))
		require.NoError(t, err)
		assert.IsType(t, &FFmpegEncoder{}, enc)
		assert.Equal(t, FormatOGG, enc.Format())
	})

	t.Run("ffmpeg without runner", func(t *testing.T) {
		_, err := NewEncoder(ExportOpts{Format: FormatMP3, UseFFmpeg: true}, nil)
		assert.Error(t, err)
	})

	t.Run("no built-in webm", func(t *testing.T) {
		_, err := NewEncoder(ExportOpts{Format: FormatWebM}, nil)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}
