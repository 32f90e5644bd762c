package audio

import (
	"encoding/binary"
	"errors"
)

// ISO-BMFF (m4a/mp4) duration, read from the movie header box. The overall
// duration lives at moov/mvhd as a tick count over a timescale.

func isMP4(data []byte) bool {
	return len(data) >= 12 && string(data[4:8]) == "ftyp"
}

func mp4Duration(data []byte) (float64, error) {
	moov, ok := findBox(data, "moov")
	if !ok {
		return 0, errors.New("missing moov box")
	}
	mvhd, ok := findBox(moov, "mvhd")
	if !ok {
		return 0, errors.New("missing mvhd box")
	}
	if len(mvhd) < 4 {
		return 0, errors.New("truncated mvhd box")
	}

	var (
		timescale uint32
		duration  uint64
	)
	switch version := mvhd[0]; version {
	case 0:
		if len(mvhd) < 20 {
			return 0, errors.New("truncated mvhd box")
		}
		timescale = binary.BigEndian.Uint32(mvhd[12:16])
		duration = uint64(binary.BigEndian.Uint32(mvhd[16:20]))
	case 1:
		// Version 1 widens the timestamps to 64 bits.
		if len(mvhd) < 32 {
			return 0, errors.New("truncated mvhd box")
		}
		timescale = binary.BigEndian.Uint32(mvhd[20:24])
		duration = binary.BigEndian.Uint64(mvhd[24:32])
	default:
		return 0, errors.New("unknown mvhd version")
	}

	if timescale == 0 {
		return 0, errors.New("mvhd declares zero timescale")
	}
	return float64(duration) / float64(timescale), nil
}

// findBox walks a sequence of boxes and returns the payload of the first
// box with the given type. Handles 64-bit largesize and size-zero
// (extends-to-end) boxes.
func findBox(data []byte, boxType string) ([]byte, bool) {
	off := 0
	for off+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		header := 8

		switch size {
		case 0:
			size = len(data) - off
		case 1:
			if off+16 > len(data) {
				return nil, false
			}
			size64 := binary.BigEndian.Uint64(data[off+8 : off+16])
			if size64 > uint64(len(data)-off) {
				return nil, false
			}
			size = int(size64)
			header = 16
		}

		if size < header || off+size > len(data) {
			return nil, false
		}
		if typ == boxType {
			return data[off+header : off+size], true
		}
		off += size
	}
	return nil, false
}
