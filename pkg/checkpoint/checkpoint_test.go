//nolint:thelper,whitespace,lll,funlen // ok for tests
package checkpoint

import (
	"math"
	"testing"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestCrossed(t *testing.T) {
	tests := []struct {
		name         string
		at           float64
		from         float64
		to           float64
		length       float64
		crossedStart bool
		want         int
	}{
		{name: "forward", at: 15, from: 10, to: 20, length: 1000, want: 1},
		{name: "backward", at: 15, from: 20, to: 10, length: 1000, want: -1},
		{name: "short of checkpoint", at: 15, from: 10, to: 12, length: 1000, want: 0},
		{name: "landing on checkpoint", at: 15, from: 10, to: 15, length: 1000, want: 1},
		{name: "leaving checkpoint forward", at: 15, from: 15, to: 20, length: 1000, want: 0},
		{name: "leaving checkpoint backward", at: 15, from: 15, to: 10, length: 1000, want: 0},
		{name: "forward across seam", at: 995, from: 990, to: 5, length: 1000, crossedStart: true, want: 1},
		{name: "backward across seam", at: 995, from: 5, to: 990, length: 1000, crossedStart: true, want: -1},
		{name: "start line forward across seam", at: 2, from: 990, to: 5, length: 1000, crossedStart: true, want: 1},
		{name: "seam without checkpoint", at: 500, from: 990, to: 5, length: 1000, crossedStart: true, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Checkpoint{Distance: tt.at}
			assert.Equal(t, tt.want, c.Crossed(tt.from, tt.to, tt.length, tt.crossedStart))
		})
	}
}

func TestCrossedWithin(t *testing.T) {
	// gate at x=1000 facing +X, 4 m wide and 2 m high
	gate := Checkpoint{
		Location: mgl64.Vec3{1000, 0, 0},
		Rotation: mgl64.QuatIdent(),
		Window:   omit.From(Window{Width: 4, Height: 2}),
		Distance: 1000,
	}
	tests := []struct {
		name       string
		cp         Checkpoint
		from       mgl64.Vec3
		to         mgl64.Vec3
		ignoreSize bool
		want       int
	}{
		{name: "through the middle", cp: gate, from: mgl64.Vec3{900, 0, 0}, to: mgl64.Vec3{1100, 0, 0}, want: 1},
		{name: "at the edge", cp: gate, from: mgl64.Vec3{900, 200, 100}, to: mgl64.Vec3{1100, 200, 100}, want: 1},
		{name: "beside", cp: gate, from: mgl64.Vec3{900, 201, 0}, to: mgl64.Vec3{1100, 201, 0}, want: 0},
		{name: "above", cp: gate, from: mgl64.Vec3{900, 0, 150}, to: mgl64.Vec3{1100, 0, 150}, want: 0},
		{name: "beside but teleporting", cp: gate, from: mgl64.Vec3{900, 500, 0}, to: mgl64.Vec3{1100, 500, 0}, ignoreSize: true, want: 1},
		{name: "diagonal into window", cp: gate, from: mgl64.Vec3{900, -300, 0}, to: mgl64.Vec3{1100, 300, 0}, want: 1},
		{name: "no window", cp: Checkpoint{Location: gate.Location, Rotation: gate.Rotation, Distance: 1000}, from: mgl64.Vec3{900, 5000, 0}, to: mgl64.Vec3{1100, 5000, 0}, want: 1},
		{name: "parallel to plane", cp: gate, from: mgl64.Vec3{1000, -1000, 0}, to: mgl64.Vec3{1000, 1000, 0}, want: 1},
		{name: "standing still", cp: gate, from: mgl64.Vec3{1000, 5000, 0}, to: mgl64.Vec3{1000, 5000, 0}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cp.CrossedWithin(950, 1050, 10000, false, tt.from, tt.to, tt.ignoreSize))
		})
	}

	// no distance crossing means no window test at all
	assert.Equal(t, 0, gate.CrossedWithin(950, 990, 10000, false, mgl64.Vec3{900, 0, 0}, mgl64.Vec3{1100, 0, 0}, false))
}

func TestCrossedWithinRotated(t *testing.T) {
	// gate facing +Y: its local Y runs along world -X
	gate := Checkpoint{
		Location: mgl64.Vec3{0, 1000, 0},
		Rotation: mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}),
		Window:   omit.From(Window{Width: 2, Height: 2}),
		Distance: 1000,
	}
	assert.Equal(t, 1, gate.CrossedWithin(950, 1050, 10000, false, mgl64.Vec3{50, 900, 0}, mgl64.Vec3{50, 1100, 0}, false))
	assert.Equal(t, 0, gate.CrossedWithin(950, 1050, 10000, false, mgl64.Vec3{150, 900, 0}, mgl64.Vec3{150, 1100, 0}, false))
	assert.InDelta(t, 1, gate.Forward().Y(), 1e-9)
}

func TestWindow(t *testing.T) {
	w := Window{Width: 3, Height: 0.5}
	assert.Equal(t, 150.0, w.HalfWidth())
	assert.Equal(t, 25.0, w.HalfHeight())
}

func TestZeroRotation(t *testing.T) {
	c := Checkpoint{}
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, c.Forward())
}
