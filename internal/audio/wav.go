package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
	wavHeaderSize     = 44
)

var errNotWAV = errors.New("not a PCM wav payload")

func pcmToWav(pcm []byte, sampleRate int) ([]byte, error) {
	header, err := wavHeader(len(pcm), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return nil, fmt.Errorf("build wav header: %w", err)
	}

	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out, nil
}

// wavPCM returns the sample rate and PCM payload of a wav produced by pcmToWav.
func wavPCM(wav []byte) (int, []byte, error) {
	if len(wav) < wavHeaderSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, nil, errNotWAV
	}
	sampleRate := int(binary.LittleEndian.Uint32(wav[24:28]))
	return sampleRate, wav[wavHeaderSize:], nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	fields := []any{
		[]byte("RIFF"),
		uint32(chunkSize),
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
		[]byte("data"),
		uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func bytesPerSecond(sampleRate int) int {
	return sampleRate * pcmChannels * pcmBitDepth / 8
}

// pcmOffset converts seconds into a frame-aligned byte offset.
func pcmOffset(seconds float64, sampleRate int) int {
	raw := int(seconds * float64(bytesPerSecond(sampleRate)))
	frame := pcmChannels * pcmBitDepth / 8
	return (raw / frame) * frame
}
