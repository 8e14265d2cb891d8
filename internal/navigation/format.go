package navigation

import (
	"fmt"
	"math"
)

// FormatDistance renders meters as kilometers with one decimal, e.g. "4.2 km".
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds rounded to the nearest minute, e.g. "8 min".
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%d min", int(math.Round(seconds/60)))
}
