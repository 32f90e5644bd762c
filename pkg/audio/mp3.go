package audio

import (
	"encoding/binary"
	"errors"
)

// MPEG audio duration. Only Layer III streams are handled; that is what
// every .mp3 encoder in the wild emits. VBR files carry a Xing/Info header
// with an exact frame count; CBR files are estimated from the stream length
// and the first frame's bitrate.

// sample rates in Hz, indexed by the header's sampling rate field.
var (
	mp3RatesV1  = [3]int{44100, 48000, 32000} // MPEG 1
	mp3RatesV2  = [3]int{22050, 24000, 16000} // MPEG 2
	mp3RatesV25 = [3]int{11025, 12000, 8000}  // MPEG 2.5
)

// bitrates in kbit/s for Layer III, indexed by the header's bitrate field.
// Index 0 is free-format, index 15 is invalid.
var (
	mp3BitratesV1 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesV2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func mp3Duration(data []byte) (float64, error) {
	off := 0
	if len(data) >= 10 && string(data[0:3]) == "ID3" {
		off = 10 + syncsafe(data[6:10])
	}

	// Find the first frame sync (11 set bits).
	for off+4 <= len(data) && !(data[off] == 0xFF && data[off+1]&0xE0 == 0xE0) {
		off++
	}
	if off+4 > len(data) {
		return 0, errors.New("no MPEG frame sync found")
	}
	h := data[off : off+4]

	version := (h[1] >> 3) & 0x3 // 0 = 2.5, 2 = 2, 3 = 1
	layer := (h[1] >> 1) & 0x3   // 1 = Layer III
	if version == 1 {
		return 0, errors.New("reserved MPEG version")
	}
	if layer != 1 {
		return 0, errors.New("unsupported MPEG layer")
	}

	rateIdx := (h[2] >> 2) & 0x3
	if rateIdx == 3 {
		return 0, errors.New("reserved sample rate")
	}
	var sampleRate int
	switch version {
	case 3:
		sampleRate = mp3RatesV1[rateIdx]
	case 2:
		sampleRate = mp3RatesV2[rateIdx]
	default:
		sampleRate = mp3RatesV25[rateIdx]
	}

	// Layer III frames carry 1152 samples in MPEG 1, 576 in MPEG 2/2.5.
	samplesPerFrame := 1152
	if version != 3 {
		samplesPerFrame = 576
	}

	// A Xing/Info header in the first frame gives the exact frame count for
	// VBR streams. Its offset varies with channel mode, so scan the frame
	// body for the tag.
	end := min(off+192, len(data))
	for i := off + 4; i+12 <= end; i++ {
		tag := string(data[i : i+4])
		if tag != "Xing" && tag != "Info" {
			continue
		}
		flags := binary.BigEndian.Uint32(data[i+4 : i+8])
		if flags&0x1 == 0 {
			break
		}
		frames := binary.BigEndian.Uint32(data[i+8 : i+12])
		return float64(frames) * float64(samplesPerFrame) / float64(sampleRate), nil
	}

	// CBR estimate: stream length over the first frame's bitrate.
	bitrateIdx := (h[2] >> 4) & 0xF
	var kbps int
	if version == 3 {
		kbps = mp3BitratesV1[bitrateIdx]
	} else {
		kbps = mp3BitratesV2[bitrateIdx]
	}
	if kbps == 0 {
		return 0, errors.New("free-format or invalid bitrate")
	}
	return float64(len(data)-off) * 8 / float64(kbps*1000), nil
}

// syncsafe decodes an ID3v2 synchsafe integer (7 bits per byte).
func syncsafe(b []byte) int {
	return int(b[0]&0x7F)<<21 | int(b[1]&0x7F)<<14 | int(b[2]&0x7F)<<7 | int(b[3]&0x7F)
}
