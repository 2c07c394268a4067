package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// displayAlphabet omits characters that are easily confused when read off a
// printed label (0/O, 1/I/L, U/V).
var displayAlphabet = []rune("23456789ABCDEFGHJKMNPQRSTWXYZ")

// RandomChars returns n characters drawn uniformly from the display alphabet.
func RandomChars(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := RandomIntn(len(displayAlphabet))
		if err != nil {
			return "", fmt.Errorf("generating random char index: %w", err)
		}
		sb.WriteRune(displayAlphabet[idx])
	}
	return sb.String(), nil
}

func RandomIntn(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
