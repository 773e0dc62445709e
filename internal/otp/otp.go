// Package otp generates numeric one-time passcodes.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// DefaultLength is the number of digits in a code.
const DefaultLength = 4

type Generator struct {
	length int
	rand   io.Reader
}

// NewGenerator returns a 4-digit generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{length: DefaultLength, rand: rand.Reader}
}

// Generate returns a fresh code of exactly length digits, leading zeros included.
func (g *Generator) Generate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length)), nil)
	n, err := rand.Int(g.rand, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", g.length, n), nil
}
