package geomath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Helpers shared by the navigation engine and the simulator.
//
// Positions are centimetres in a local x=north, y=east, z=up frame; bearings
// are centi-degrees in [0, 36000).

// RadToCentiDeg converts radians to centi-degrees (18000/pi).
const RadToCentiDeg = 5729.57795

// SafeSqrt returns sqrt(v), or 0 for negative input.
func SafeSqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// Pythag2 returns sqrt(a^2 + b^2).
func Pythag2(a, b float64) float64 {
	return math.Sqrt(a*a + b*b)
}

// Constrain clamps v into [lo, hi].
func Constrain(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BearingCD returns the bearing from origin to destination in centi-degrees,
// normalised into [0, 36000).
func BearingCD(origin, destination r3.Vector) float64 {
	bearing := 9000 + math.Atan2(-(destination.X-origin.X), destination.Y-origin.Y)*RadToCentiDeg
	if bearing < 0 {
		bearing += 36000
	}
	return bearing
}

// Wrap360CD normalises a centi-degree angle into [0, 36000).
func Wrap360CD(cd float64) float64 {
	cd = math.Mod(cd, 36000)
	if cd < 0 {
		cd += 36000
	}
	return cd
}
