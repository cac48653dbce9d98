package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

type OTPGenerator struct {
	length int
}

func NewOTPGenerator(length int) *OTPGenerator {
	if length < 4 || length > 9 {
		length = 6
	}
	return &OTPGenerator{length: length}
}

// Generate returns a zero-padded numeric code of the configured length.
func (g *OTPGenerator) Generate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length)), nil)

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}

	return fmt.Sprintf("%0*d", g.length, n), nil
}
