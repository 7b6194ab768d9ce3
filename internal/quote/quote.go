package quote

import (
	"fmt"
	"math"
	"strconv"
)

// Quote is the normalized point-in-time snapshot for one instrument.
// Prices are kept as 2dp decimal strings; change figures are numeric so
// callers can scale them.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         string  `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          string  `json:"high,omitempty"`
	Low           string  `json:"low,omitempty"`
	Volume        string  `json:"volume,omitempty"`
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatPrice renders a price as a 2dp decimal string.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}

// FormatVolume renders share volume at a human scale:
// >=1e9 -> "4.1B", >=1e6 -> "2.3M", >=1e3 -> "1.5K", else the raw integer.
func FormatVolume(v int64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(v)/1_000_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(v)/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", float64(v)/1_000)
	default:
		return strconv.FormatInt(v, 10)
	}
}
