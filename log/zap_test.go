package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Named(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel).Named("race")
	l.Info("started", String("leader", "A"))

	assert.Contains(t, buf.String(), `"logger":"race"`)
	assert.Contains(t, buf.String(), `"leader":"A"`)
}

func TestLogger_SetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, InfoLevel)
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Named("child").SetLevel(DebugLevel)
	l.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_WithFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	base := New(buf, DebugLevel)
	l, err := base.WithFilter("debug:race info:*")
	require.NoError(t, err)

	l.Named("race").Debug("race debug")
	l.Named("session").Debug("session debug")
	l.Named("session").Info("session info")

	out := buf.String()
	assert.Contains(t, out, "race debug")
	assert.NotContains(t, out, "session debug")
	assert.Contains(t, out, "session info")
}

func TestGetFromContext(t *testing.T) {
	l := New(&bytes.Buffer{}, InfoLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
	assert.Same(t, Default(), GetFromContext(context.Background()))
}
