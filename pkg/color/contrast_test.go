package color

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContrast(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"white background", "#FFFFFF", Black},
		{"black background", "#000000", White},
		{"default yellow", "#ffeb3b", Black},
		{"just below threshold", "#9b9b9b", White},
		{"just above threshold", "#9c9c9c", Black},
		{"pure red", "#ff0000", White},
		{"pure green", "#00ff00", White},
		{"light green", "#00ff99", Black},
		{"pure blue", "#0000ff", White},
		{"without hash", "ffffff", Black},
		{"uppercase digits", "#FFEB3B", Black},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Contrast(tc.in))
		})
	}
}

func TestContrast_OnlyBlackOrWhite(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 2000 {
		hex := Random(rng)
		got := Contrast(hex)
		assert.Contains(t, []string{Black, White}, got, "input %s", hex)
		assert.Equal(t, got, Contrast(hex), "contrast must be deterministic for %s", hex)
	}
}

func TestParse(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		c, err := Parse("#1a2B3c")
		require.NoError(t, err)
		assert.Equal(t, RGB{R: 0x1a, G: 0x2b, B: 0x3c}, c)
		assert.Equal(t, "#1a2b3c", c.Hex())
	})

	for _, bad := range []string{"", "#", "#fff", "#12345", "#1234567", "#gggggg", "#-12345", "#+12345"} {
		t.Run("Rejects "+bad, func(t *testing.T) {
			_, err := Parse(bad)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.False(t, Valid(bad))
		})
	}
}

type fixedSource int

func (f fixedSource) IntN(int) int { return int(f) }

func TestRandom(t *testing.T) {
	t.Run("Pads Small Values", func(t *testing.T) {
		assert.Equal(t, "#00000f", Random(fixedSource(15)))
		assert.Equal(t, "#000000", Random(fixedSource(0)))
	})

	t.Run("Max Value", func(t *testing.T) {
		assert.Equal(t, "#ffffff", Random(fixedSource(1<<24-1)))
	})

	t.Run("Always Valid", func(t *testing.T) {
		for range 500 {
			assert.True(t, Valid(Random(nil)))
		}
	})
}
