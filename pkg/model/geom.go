package model

import "math"

// Vec3 is a world position or velocity. Y is the vertical axis.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vec2 is a point on the ground plane (world X/Z).
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

func DistanceSquared(a, b Vec3) float64 {
	return a.Sub(b).LengthSquared()
}

// Bearing returns the angle in degrees [0,360) of the direction from a to b
// on the ground plane, measured from the Z axis towards the X axis.
func Bearing(from, to Vec3) float64 {
	deg := math.Atan2(to.X-from.X, to.Z-from.Z) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
