package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestWAVHeader_RoundTrip(t *testing.T) {
	f := PCM16Mono(16000)
	hdr := WAVHeader(f, 3200)
	if len(hdr) != 44 {
		t.Fatalf("expected 44-byte header, got %d", len(hdr))
	}

	got, err := ReadWAVHeader(bytes.NewReader(hdr))
	if err != nil {
		t.Fatalf("ReadWAVHeader() error = %v", err)
	}
	if got != f {
		t.Errorf("ReadWAVHeader() = %+v, want %+v", got, f)
	}
	if f.ByteRate() != 32000 {
		t.Errorf("expected byte rate 32000, got %d", f.ByteRate())
	}
}

func TestSkipWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}

	t.Run("canonical header", func(t *testing.T) {
		in := append(WAVHeader(PCM16Mono(16000), len(pcm)), pcm...)
		got, err := io.ReadAll(SkipWAVHeader(bytes.NewReader(in)))
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(got, pcm) {
			t.Errorf("expected samples only, got %v", got)
		}
	})

	t.Run("extra chunk before data", func(t *testing.T) {
		hdr := WAVHeader(PCM16Mono(16000), -1)
		var buf bytes.Buffer
		buf.Write(hdr[:36]) // RIFF + fmt chunk
		buf.WriteString("LIST")
		_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
		buf.Write([]byte{'a', 'b', 'c', 0}) // odd size plus pad byte
		buf.Write(hdr[36:])
		buf.Write(pcm)

		got, err := io.ReadAll(SkipWAVHeader(&buf))
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(got, pcm) {
			t.Errorf("expected samples only, got %v", got)
		}
	})

	t.Run("raw pcm passes through", func(t *testing.T) {
		got, _ := io.ReadAll(SkipWAVHeader(bytes.NewReader(pcm)))
		if !bytes.Equal(got, pcm) {
			t.Errorf("expected input unchanged, got %v", got)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := io.ReadAll(SkipWAVHeader(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00WAVEfmt "))))
		if err == nil {
			t.Error("expected error for truncated header")
		}
	})
}

func TestReadWAVHeader_NotWAV(t *testing.T) {
	_, err := ReadWAVHeader(bytes.NewReader([]byte("OggS0000000000000000")))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}
