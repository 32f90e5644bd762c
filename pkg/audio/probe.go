// Package audio provides media inspection utilities used by the upload
// validation path.
//
// The prober reads playback duration from container metadata without
// decoding samples. It understands the three formats the upload surface
// accepts: RIFF/WAVE (the in-app recorder), MPEG audio (mp3), and
// ISO-BMFF (m4a).
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedContainer is returned for data whose leading bytes match no
// supported audio container.
var ErrUnsupportedContainer = errors.New("audio: unsupported container")

// Prober probes playback duration from audio container headers without
// decoding samples. It is stateless and safe for concurrent use.
type Prober struct{}

// NewProber returns a Prober.
func NewProber() *Prober {
	return &Prober{}
}

// ProbeDuration returns the playback duration in seconds of the audio file
// in data. The container is detected from the leading bytes, not from the
// file name; the name is used only for error context.
func (p *Prober) ProbeDuration(ctx context.Context, name string, data []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var (
		d   float64
		err error
	)
	switch {
	case isWAV(data):
		d, err = wavDuration(data)
	case isMP4(data):
		d, err = mp4Duration(data)
	case isMP3(data):
		d, err = mp3Duration(data)
	default:
		err = ErrUnsupportedContainer
	}
	if err != nil {
		return 0, fmt.Errorf("audio: probe %q: %w", name, err)
	}
	return d, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// wavDuration walks the RIFF chunk list, reads the byte rate from the fmt
// chunk, and divides the data chunk length by it.
func wavDuration(data []byte) (float64, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, ErrUnsupportedContainer
	}

	var (
		byteRate uint32
		dataLen  uint32
		haveFmt  bool
		haveData bool
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return 0, errors.New("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
			haveFmt = true
		case "data":
			dataLen = size
			haveData = true
		}

		// Chunks are word-aligned.
		off = body + int(size)
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || !haveData {
		return 0, errors.New("missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, errors.New("fmt chunk declares zero byte rate")
	}
	return float64(dataLen) / float64(byteRate), nil
}
