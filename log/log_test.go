//nolint:thelper,whitespace,lll,funlen // ok for tests
package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, InfoLevel).Named("pursuit")
	l.Debug("hidden")
	l.Info("links established", Int("count", 3), String("spline", "main"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	var entry map[string]any
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "links established", entry["msg"])
	assert.Equal(t, "pursuit", entry["logger"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestFilterByName(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel, WithFilter("*:pursuit"))
	l.Named("progress").Info("should be filtered")
	l.Named("pursuit").Info("kept")

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    Level
		wantErr bool
	}{
		{name: "debug", arg: "debug", want: DebugLevel},
		{name: "warn", arg: "warn", want: WarnLevel},
		{name: "invalid", arg: "chatty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContext(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, InfoLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
	assert.Same(t, Default(), GetFromContext(context.Background()))
}
