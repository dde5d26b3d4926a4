package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SpeechSampleRate is the rate speech recognizers expect.
const SpeechSampleRate = 16000

// EncodeWAV renders mono float samples in [-1, 1] as a 16-bit PCM WAV file.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = SpeechSampleRate
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	pcm := make([]byte, 2)
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(pcm, uint16(int16(math.Round(v*math.MaxInt16))))
		buf.Write(pcm)
	}
	return buf.Bytes()
}

// DecodeFloat32LE converts raw little-endian float32 PCM (ffmpeg's f32le
// output) into samples.
func DecodeFloat32LE(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("pcm: length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// WAVInfo is the format block of a PCM WAV file.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

// Duration returns the playback length described by the header.
func (w WAVInfo) Duration() float64 {
	frame := w.Channels * w.BitsPerSample / 8
	if frame == 0 || w.SampleRate == 0 {
		return 0
	}
	return float64(w.DataBytes/frame) / float64(w.SampleRate)
}

// ReadWAVInfo parses the RIFF header of a PCM WAV file.
func ReadWAVInfo(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("wav: missing RIFF/WAVE header")
	}
	var info WAVInfo
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return WAVInfo{}, errors.New("wav: truncated fmt chunk")
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			info.DataBytes = min(size, len(data)-body)
			if info.SampleRate == 0 {
				return WAVInfo{}, errors.New("wav: data chunk before fmt chunk")
			}
			return info, nil
		}
		offset = body + size + size%2
	}
	return WAVInfo{}, errors.New("wav: no data chunk")
}
