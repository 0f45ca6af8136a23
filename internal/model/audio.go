package model

import (
	"encoding/binary"
	"fmt"
)

// MetadataHeaderSize is the fixed size, in bytes, of the binary audio
// metadata header prefixed to multipart audio payloads crossing the bus
// (spec §6, "binary payloads over the bus").
const MetadataHeaderSize = 12

// AudioConfig bounds the sample formats the attachment pipeline accepts.
type AudioConfig struct {
	ValidSampleRates []uint32
	MaxChannels      uint16
	ValidBitDepths   []uint16
}

// AudioMetadata is the little-endian 12-byte header prefixed to a raw
// audio payload: sample rate, channel count, bit depth, and a reserved
// field left for future codec negotiation.
type AudioMetadata struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Reserved      uint32
}

// ParseMetadata decodes the fixed-size header prefixed to an audio payload.
func ParseMetadata(data []byte) (*AudioMetadata, error) {
	if len(data) != MetadataHeaderSize {
		return nil, fmt.Errorf("invalid header size: expected %d, got %d",
			MetadataHeaderSize, len(data))
	}

	return &AudioMetadata{
		SampleRate:    binary.LittleEndian.Uint32(data[0:4]),
		Channels:      binary.LittleEndian.Uint16(data[4:6]),
		BitsPerSample: binary.LittleEndian.Uint16(data[6:8]),
		Reserved:      binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// Validate checks the header against the set of accepted audio formats.
func (m *AudioMetadata) Validate(cfg *AudioConfig) error {
	validRate := false
	for _, rate := range cfg.ValidSampleRates {
		if m.SampleRate == rate {
			validRate = true
			break
		}
	}
	if !validRate {
		return fmt.Errorf("unsupported sample rate: %d", m.SampleRate)
	}

	if m.Channels < 1 || m.Channels > cfg.MaxChannels {
		return fmt.Errorf("invalid channel count: %d (max: %d)", m.Channels, cfg.MaxChannels)
	}

	validDepth := false
	for _, depth := range cfg.ValidBitDepths {
		if m.BitsPerSample == depth {
			validDepth = true
			break
		}
	}
	if !validDepth {
		return fmt.Errorf("unsupported bits per sample: %d", m.BitsPerSample)
	}

	return nil
}

// BytesPerSample returns the byte width of one sample.
func (m *AudioMetadata) BytesPerSample() int {
	return int(m.BitsPerSample / 8)
}
