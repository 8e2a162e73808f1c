// Package wavio reads WAV files into float samples and writes 16-bit PCM
// WAV payloads.
package wavio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadFile decodes a WAV file into float32 samples scaled to [-1, 1],
// returning the file's native rate and channel count.
func ReadFile(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open wav %q: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%q is not a valid wav file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode wav %q: %w", path, err)
	}

	samples := floatSamples(buf, int(decoder.BitDepth))
	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// floatSamples scales integer PCM to float32 by the bit depth's full range.
func floatSamples(buf *audio.IntBuffer, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	out := make([]float32, len(buf.Data))
	for i, sample := range buf.Data {
		out[i] = float32(sample) / scale
	}
	return out
}

// FloatToPCM16 converts float samples to little-endian 16-bit PCM bytes,
// clamping outside [-1, 1].
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		value := int16(sample * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

// WritePCM16 writes raw little-endian PCM bytes with a minimal WAV header.
func WritePCM16(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	chunkSize := uint32(36 + len(pcm))
	subChunk2Size := uint32(len(pcm))

	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], chunkSize)
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], subChunk2Size)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
