// Package util holds small numeric helpers shared across packages.
package util

import "math"

// RoundToTick snaps a quoted price to the nearest multiple of tick. The
// refresh path uses tick=0.01 to round spot quotes to the cent before they
// are stored on a position. A non-positive tick returns the price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
