package otp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerate_FourDigits(t *testing.T) {
	g := NewGenerator()

	for range 200 {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, DefaultLength)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "non-digit in %q", code)
		}
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]struct{})
	for range 50 {
		code, err := g.Generate()
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	// 50 draws from 10^4 codes landing on one value means the source is broken.
	assert.Greater(t, len(seen), 1)
}

func TestGenerate_ReaderError(t *testing.T) {
	g := &Generator{length: DefaultLength, rand: failingReader{}}

	_, err := g.Generate()
	assert.Error(t, err)
}
