package spline

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rotator holds an orientation or a rotation delta in degrees.
// Positive pitch raises the nose, positive yaw turns from X towards Y.
type Rotator struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

func (r Rotator) Add(o Rotator) Rotator {
	return Rotator{Pitch: r.Pitch + o.Pitch, Yaw: r.Yaw + o.Yaw, Roll: r.Roll + o.Roll}
}

func (r Rotator) Abs() Rotator {
	return Rotator{Pitch: math.Abs(r.Pitch), Yaw: math.Abs(r.Yaw), Roll: math.Abs(r.Roll)}
}

// MaxComponent returns the largest absolute component.
func (r Rotator) MaxComponent() float64 {
	a := r.Abs()
	return math.Max(a.Pitch, math.Max(a.Yaw, a.Roll))
}

func (r Rotator) Quat() mgl64.Quat {
	yaw := mgl64.QuatRotate(mgl64.DegToRad(r.Yaw), mgl64.Vec3{0, 0, 1})
	pitch := mgl64.QuatRotate(mgl64.DegToRad(-r.Pitch), mgl64.Vec3{0, 1, 0})
	roll := mgl64.QuatRotate(mgl64.DegToRad(r.Roll), mgl64.Vec3{1, 0, 0})
	return yaw.Mul(pitch).Mul(roll)
}

// RotatorFromQuat decomposes q into yaw, pitch and roll.
func RotatorFromQuat(q mgl64.Quat) Rotator {
	q = q.Normalize()
	f := q.Rotate(mgl64.Vec3{1, 0, 0})
	yaw := math.Atan2(f[1], f[0])
	pitch := math.Asin(mgl64.Clamp(f[2], -1, 1))
	base := mgl64.QuatRotate(yaw, mgl64.Vec3{0, 0, 1}).
		Mul(mgl64.QuatRotate(-pitch, mgl64.Vec3{0, 1, 0}))
	rest := base.Inverse().Mul(q)
	roll := 2 * math.Atan2(rest.V[0], rest.W)
	return Rotator{
		Pitch: mgl64.RadToDeg(pitch),
		Yaw:   mgl64.RadToDeg(yaw),
		Roll:  NormalizeDegrees(mgl64.RadToDeg(roll)),
	}
}

// QuatFromDirection returns the orientation whose X axis points along dir
// with no roll.
func QuatFromDirection(dir mgl64.Vec3) mgl64.Quat {
	if dir.Len() < 1e-9 {
		return mgl64.QuatIdent()
	}
	dir = dir.Normalize()
	yaw := math.Atan2(dir[1], dir[0])
	pitch := math.Asin(mgl64.Clamp(dir[2], -1, 1))
	return mgl64.QuatRotate(yaw, mgl64.Vec3{0, 0, 1}).
		Mul(mgl64.QuatRotate(-pitch, mgl64.Vec3{0, 1, 0}))
}

// NormalizeDegrees wraps a into [-180, 180].
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	switch {
	case a > 180:
		a -= 360
	case a < -180:
		a += 360
	}
	return a
}

// SignedDegreesDifference returns to minus from per component, each wrapped
// into [-180, 180].
func SignedDegreesDifference(from, to Rotator) Rotator {
	return Rotator{
		Pitch: NormalizeDegrees(to.Pitch - from.Pitch),
		Yaw:   NormalizeDegrees(to.Yaw - from.Yaw),
		Roll:  NormalizeDegrees(to.Roll - from.Roll),
	}
}

func UnsignedDegreesDifference(from, to Rotator) Rotator {
	return SignedDegreesDifference(from, to).Abs()
}
