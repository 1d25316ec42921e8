package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/testutil"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantFormat string
		wantErr    bool
	}{
		{name: "png ok", data: testutil.PNG(t, 300, 240), wantFormat: "png"},
		{name: "jpeg ok", data: testutil.JPEG(t, 400, 400), wantFormat: "jpeg"},
		{name: "empty", data: nil, wantErr: true},
		{name: "html page", data: []byte("<!DOCTYPE html><html><body>blocked</body></html>"), wantErr: true},
		{name: "too small", data: testutil.PNG(t, 64, 64), wantErr: true},
		{name: "truncated png", data: testutil.PNG(t, 300, 300)[:20], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Inspect(tt.data, DefaultMinWidth, DefaultMinHeight)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsValidationError(err), "expected ValidationError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, info.Format)
			assert.Equal(t, int64(len(tt.data)), info.Size)
		})
	}
}

func TestInspect_ReportsDimensionsOnSmallImage(t *testing.T) {
	info, err := Inspect(testutil.PNG(t, 120, 90), 200, 200)
	require.Error(t, err)
	assert.Equal(t, 120, info.Width)
	assert.Equal(t, 90, info.Height)
}

func TestPlaceholder(t *testing.T) {
	data, err := Placeholder(320, 320, "meme")
	require.NoError(t, err)

	info, err := Inspect(data, 300, 300)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, ".png", info.Extension())

	again, err := Placeholder(320, 320, "meme")
	require.NoError(t, err)
	assert.Equal(t, data, again, "placeholder must be deterministic")

	_, err = Placeholder(0, 10, "x")
	assert.Error(t, err)
}
