package engine

import "math"

// floatSlack absorbs binary representation error so values that are exact in
// decimal (e.g. 4.563 at 5 places) round to themselves.
const floatSlack = 1e-9

// roundDown truncates v to the given number of decimal places.
func roundDown(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Floor(v*p+floatSlack) / p
}

// roundUp rounds v up to the given number of decimal places.
func roundUp(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Ceil(v*p-floatSlack) / p
}
