package vmath

import (
	"math"
)

// Vec2F is a float64 2D vector for world-space geometry
type Vec2F struct {
	X, Y float64
}

func V2FAdd(a, b Vec2F) Vec2F {
	return Vec2F{a.X + b.X, a.Y + b.Y}
}

func V2FSub(a, b Vec2F) Vec2F {
	return Vec2F{a.X - b.X, a.Y - b.Y}
}

func V2FScale(v Vec2F, s float64) Vec2F {
	return Vec2F{v.X * s, v.Y * s}
}

// V2FHeading returns the unit vector at angle theta radians, counter-clockwise from +X
func V2FHeading(theta float64) Vec2F {
	s, c := math.Sincos(theta)
	return Vec2F{c, s}
}

// V2FLeft returns v rotated a quarter turn counter-clockwise
func V2FLeft(v Vec2F) Vec2F {
	return Vec2F{-v.Y, v.X}
}
