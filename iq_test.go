package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestConvertIQSamplesLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.Byte()).Draw(t, "raw")
		samples := convertIQSamples(raw)
		assert.Equal(t, len(raw)/2, len(samples))
	})
}

func TestConvertIQSamplesValues(t *testing.T) {
	samples := convertIQSamples([]byte{0, 255, 127, 128})
	assert.Len(t, samples, 2)

	assert.InDelta(t, -1.0, real(samples[0]), 1e-9)
	assert.InDelta(t, 1.0, imag(samples[0]), 1e-9)
	assert.InDelta(t, -0.5/127.5, real(samples[1]), 1e-9)
	assert.InDelta(t, 0.5/127.5, imag(samples[1]), 1e-9)
}

func TestConvertIQSamplesOddTrailingByte(t *testing.T) {
	// The dangling byte is dropped, never carried into the next chunk
	samples := convertIQSamples([]byte{10, 20, 30})
	assert.Len(t, samples, 1)

	samples = convertIQSamples([]byte{42})
	assert.Empty(t, samples)
}

func TestQuantizeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Byte().Draw(t, "b")
		v := (float64(b) - 127.5) / 127.5
		assert.Equal(t, b, quantize(v))
	})
}
