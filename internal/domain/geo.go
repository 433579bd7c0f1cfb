package domain

import "math"

type Coords struct{ Lat, Lon float64 }

const earthRadiusKm = 6371

// Distance returns the planar-approximation great-circle distance between
// two points in kilometers, rounded to 2 decimals. Accurate enough at
// city scale, which is all the campus searches need.
func Distance(a, b Coords) float64 {
	x := rad(b.Lon-a.Lon) * math.Cos(rad((a.Lat+b.Lat)/2))
	y := rad(b.Lat - a.Lat)
	return round2(earthRadiusKm * math.Sqrt(x*x+y*y))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
