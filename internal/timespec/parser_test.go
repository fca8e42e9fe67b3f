package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr string
	}{
		{"duration", "1h", now.Add(-time.Hour), ""},
		{"compound duration", "1h30m", now.Add(-90 * time.Minute), ""},
		{"rfc3339", "2025-10-29T13:00:00Z", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC), ""},
		{"empty", "", time.Time{}, "empty time specification"},
		{"negative", "-1h", time.Time{}, "negative duration"},
		{"garbage", "yesterday", time.Time{}, "invalid time specification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAt(tt.spec, now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseRangeAt(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		w, err := ParseRangeAt("", "", now)
		require.NoError(t, err)
		assert.True(t, w.Open())
		assert.True(t, w.Contains(1))
	})

	t.Run("bounded", func(t *testing.T) {
		w, err := ParseRangeAt("2h", "1h", now)
		require.NoError(t, err)
		assert.False(t, w.Open())
		assert.True(t, w.Contains(now.Add(-2*time.Hour).UnixMilli()))
		assert.True(t, w.Contains(now.Add(-90*time.Minute).UnixMilli()))
		assert.False(t, w.Contains(now.Add(-time.Hour).UnixMilli()))
		assert.False(t, w.Contains(now.Add(-3*time.Hour).UnixMilli()))
	})

	t.Run("inverted", func(t *testing.T) {
		_, err := ParseRangeAt("1h", "2h", now)
		assert.EqualError(t, err, "--since must be before --until")
	})

	t.Run("invalid flag is named", func(t *testing.T) {
		_, err := ParseRangeAt("soon", "", now)
		assert.Contains(t, err.Error(), "invalid --since")

		_, err = ParseRangeAt("", "later", now)
		assert.Contains(t, err.Error(), "invalid --until")
	})
}
