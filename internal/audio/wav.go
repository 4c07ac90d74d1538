package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned by ReadWAVHeader when the stream does not start
// with a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// Format describes PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// PCM16Mono is the format every backend receives.
func PCM16Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

// ByteRate returns bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// ReadWAVHeader consumes a RIFF/WAVE header from r, stopping at the start of
// the data chunk.
func ReadWAVHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	var f Format
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Format{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "data":
			if f.SampleRate == 0 {
				return Format{}, errors.New("wav: data chunk before fmt chunk")
			}
			return f, nil
		case "fmt ":
			if size < 16 {
				return Format{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return Format{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return Format{}, fmt.Errorf("skip chunk padding: %w", err)
			}
		}
	}
}

// SkipWAVHeader returns a reader over the PCM samples of r. Streams that do
// not start with "RIFF" pass through unchanged.
func SkipWAVHeader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil || !bytes.Equal(magic, []byte("RIFF")) {
		return br
	}
	if _, err := ReadWAVHeader(br); err != nil {
		return &errReader{err: err}
	}
	return br
}

// WAVHeader returns a canonical 44-byte header for dataLen bytes of PCM.
// ffmpeg writes 0xFFFFFFFF sizes for pipes; pass dataLen < 0 to do the same.
func WAVHeader(f Format, dataLen int) []byte {
	riffSize, dataSize := uint32(0xFFFFFFFF), uint32(0xFFFFFFFF)
	if dataLen >= 0 {
		dataSize = uint32(dataLen)
		riffSize = uint32(36 + dataLen)
	}
	blockAlign := f.Channels * f.BitsPerSample / 8

	buf := make([]byte, 44)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], riffSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(f.BitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)
	return buf
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
