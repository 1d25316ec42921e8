package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = SetCarouselID(ctx, "c-1")
	ctx = SetSlide(ctx, 3, "news")
	ctx = SetSource(ctx, "pexels")

	With(Fields{}).WithDuration(1500 * time.Millisecond).WithAttempt(2).Info(ctx, "fetched %s", "x")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "c-1", line[FieldCarouselID])
	assert.Equal(t, float64(3), line[FieldSlide])
	assert.Equal(t, "news", line[FieldHint])
	assert.Equal(t, "pexels", line[FieldSource])
	assert.Equal(t, float64(1500), line[FieldDurationMs])
	assert.Equal(t, float64(2), line[FieldAttempt])
	assert.Equal(t, "fetched x", line["message"])
	assert.Equal(t, "c-1", GetCarouselID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Same(t, GetDefault(), FromContext(nil)) //nolint:staticcheck
}

func TestSetSlideWithoutHint(t *testing.T) {
	ctx := SetSlide(context.Background(), 1, "")
	_, ok := GetField(ctx, FieldHint)
	assert.False(t, ok)
	v, ok := GetField(ctx, FieldSlide)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLevelParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Format: "text", Output: &buf})
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
