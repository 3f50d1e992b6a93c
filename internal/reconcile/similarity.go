package reconcile

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"asta_radar/internal/extract"
)

// Similarity is the normalised Levenshtein ratio of the folded forms of a and
// b, in [0,1]. Empty input on either side scores 0.
func Similarity(a, b string) float64 {
	a, b = extract.FoldKey(a), extract.FoldKey(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}
