package main

import (
	"math/cmplx"
	"time"
)

// IQFrame is one chunk of complex baseband samples from the SDR.
// Frames are owned by their current pipeline stage and must not be
// retained past one step.
type IQFrame struct {
	Samples    []complex128
	Frequency  uint64 // Center frequency in Hz
	SampleRate uint32
	Timestamp  time.Time // Wall clock when the last sample arrived
}

// convertIQSamples converts raw interleaved uint8 I/Q bytes from rtl_tcp
// into normalized complex samples. A trailing odd byte is discarded; it
// is never buffered across chunks so a boundary error cannot leak into
// the next frame.
func convertIQSamples(raw []byte) []complex128 {
	n := len(raw) / 2
	samples := make([]complex128, n)
	for i := 0; i < n; i++ {
		re := (float64(raw[2*i]) - 127.5) / 127.5
		im := (float64(raw[2*i+1]) - 127.5) / 127.5
		samples[i] = complex(re, im)
	}
	return samples
}

// instantaneousPower returns |s|^2 for each sample
func instantaneousPower(samples []complex128) []float64 {
	power := make([]float64, len(samples))
	for i, s := range samples {
		m := cmplx.Abs(s)
		power[i] = m * m
	}
	return power
}
