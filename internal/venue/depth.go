package venue

import "github.com/ranc1/marketmaker/internal/domain"

// TrueTopOfBook collapses a depth-ordered list of levels (best price first)
// into a single executable top-of-book entry. Some venues carry artificially
// large resting orders near the top that are not genuinely fillable, so
// volume is accumulated across consecutive levels until it exceeds
// wallThreshold; the result pairs the price of the level that crossed the
// threshold with the cumulative volume up to and including it. This is
// pessimistic about fill price but realistic about available size.
//
// If no prefix of the list crosses the threshold, the single best level is
// returned unmodified. An empty list yields a zero PriceLevel.
func TrueTopOfBook(levels []domain.PriceLevel, wallThreshold float64) domain.PriceLevel {
	if len(levels) == 0 {
		return domain.PriceLevel{}
	}

	var cum float64
	for _, lvl := range levels {
		cum += lvl.Volume
		if cum > wallThreshold {
			return domain.PriceLevel{Price: lvl.Price, Volume: cum}
		}
	}
	return levels[0]
}
