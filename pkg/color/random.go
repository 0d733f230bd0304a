package color

import (
	"fmt"
	"math/rand/v2"
)

// Source yields uniformly distributed integers in [0, n).
// *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the process-wide generator.
var DefaultSource Source = globalSource{}

// Random returns a random "#rrggbb" color. Values below 0x100000 are zero padded.
func Random(src Source) string {
	if src == nil {
		src = DefaultSource
	}
	return fmt.Sprintf("#%06x", src.IntN(1<<24))
}
