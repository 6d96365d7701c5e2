/*
 * This file is part of Hey Raven.
 * Copyright (C) 2025 Hey Raven Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package ttsgateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ToneEngine synthesizes a short fixed-frequency WAV tone instead of real
// speech. It fails only on empty text and needs no network, so it is the last-resort
// fallback when the networked engine is unreachable: the meeting hears a
// short chime instead of dead air.
type ToneEngine struct {
	sampleRate int
	frequency  float64
	duration   float64 // seconds
}

// NewToneEngine builds a ToneEngine with sensible defaults for a short,
// unobtrusive chime.
func NewToneEngine() *ToneEngine {
	return &ToneEngine{sampleRate: 8000, frequency: 440, duration: 0.3}
}

func (e *ToneEngine) Name() string { return "tone-fallback" }

// Synthesize ignores the content of text and opts.Voice (there is no voice
// to select) and returns the same short WAV tone for any non-empty text; an
// empty text is an error.
func (e *ToneEngine) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	if text == "" {
		return SynthesizeResult{}, fmt.Errorf("text cannot be empty")
	}
	return SynthesizeResult{
		Audio:      e.wav(),
		Format:     "wav",
		DurationS:  e.duration,
		EngineName: e.Name(),
	}, nil
}

// Health always succeeds: there is no external dependency to check.
func (e *ToneEngine) Health(ctx context.Context) error { return nil }

func (e *ToneEngine) wav() []byte {
	numSamples := int(float64(e.sampleRate) * e.duration)
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / float64(e.sampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*e.frequency*t) * 0.3 * math.MaxInt16)
	}

	var buf bytes.Buffer
	dataSize := numSamples * 2
	writeWAVHeader(&buf, e.sampleRate, 1, 16, dataSize)
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

// writeWAVHeader writes a canonical 44-byte PCM WAV header.
func writeWAVHeader(buf *bytes.Buffer, sampleRate, numChannels, bitsPerSample, dataSize int) {
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
}
