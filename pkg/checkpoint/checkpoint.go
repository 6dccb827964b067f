// Package checkpoint binds race checkpoints to the master spline and decides
// when a vehicle crosses one of them.
package checkpoint

import (
	"math"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// windowExtent is the unscaled half size of a checkpoint window.
	windowExtent = 50.0
	parallelEps  = 1e-9
)

// Window is the optional physical gate of a checkpoint. Width and Height
// scale the unit gate, a Width of 1 is a 1 m wide gate.
type Window struct {
	Width  float64
	Height float64
}

// HalfWidth is the largest accepted local Y offset.
func (w Window) HalfWidth() float64 { return windowExtent * w.Width }

// HalfHeight is the largest accepted local Z offset.
func (w Window) HalfHeight() float64 { return windowExtent * w.Height }

type Checkpoint struct {
	Name       string
	Order      int
	Location   mgl64.Vec3
	Rotation   mgl64.Quat
	Window     omit.Val[Window]
	Attributes map[string]any
	// Distance is the distance along the master spline, assigned when the
	// checkpoint is bound to a Track.
	Distance float64
}

// Forward is the normal of the checkpoint plane.
func (c *Checkpoint) Forward() mgl64.Vec3 {
	return c.rotation().Rotate(mgl64.Vec3{1, 0, 0})
}

func (c *Checkpoint) rotation() mgl64.Quat {
	if c.Rotation.Len() < parallelEps {
		return mgl64.QuatIdent()
	}
	return c.Rotation.Normalize()
}

// Crossed reports whether moving from one master distance to another
// passes this checkpoint: +1 forwards, -1 backwards and 0 otherwise.
// crossedStart signals the movement wrapped across the start of a closed
// master spline of the given length.
func (c *Checkpoint) Crossed(from, to, length float64, crossedStart bool) int {
	at := c.Distance
	if crossedStart {
		half := length / 2
		if from < half {
			from += length
		}
		if to < half {
			to += length
		}
		if at < half {
			at += length
		}
	}
	switch {
	case from < at && to >= at:
		return 1
	case from > at && to <= at:
		return -1
	}
	return 0
}

// CrossedWithin is Crossed with the physical window applied: a crossing is
// only counted when the path from fromLocation to toLocation passes through
// the window. ignoreSize skips the window test, teleporting vehicles use it.
func (c *Checkpoint) CrossedWithin(
	from, to, length float64,
	crossedStart bool,
	fromLocation, toLocation mgl64.Vec3,
	ignoreSize bool,
) int {
	ret := c.Crossed(from, to, length, crossedStart)
	if ret == 0 || ignoreSize {
		return ret
	}
	w, ok := c.Window.Get()
	if !ok {
		return ret
	}
	if !c.passesWindow(w, fromLocation, toLocation) {
		return 0
	}
	return ret
}

func (c *Checkpoint) passesWindow(w Window, from, to mgl64.Vec3) bool {
	hit, ok := c.planeIntersection(from, to)
	if !ok {
		// nothing to test against, the distance crossing stands
		return true
	}
	local := c.rotation().Inverse().Rotate(hit.Sub(c.Location))
	return math.Abs(local.Y()) <= w.HalfWidth() && math.Abs(local.Z()) <= w.HalfHeight()
}

// planeIntersection intersects the infinite line through from and to with
// the checkpoint plane. Lines parallel to the plane have no intersection.
func (c *Checkpoint) planeIntersection(from, to mgl64.Vec3) (mgl64.Vec3, bool) {
	n := c.Forward()
	dir := to.Sub(from)
	denom := dir.Dot(n)
	if math.Abs(denom) < parallelEps {
		return mgl64.Vec3{}, false
	}
	t := c.Location.Sub(from).Dot(n) / denom
	return from.Add(dir.Mul(t)), true
}
