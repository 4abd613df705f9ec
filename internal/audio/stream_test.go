package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

type constSource struct {
	value    float32
	finished bool
}

func (s *constSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = s.value
	}
}

func (s *constSource) Finished() bool { return s.finished }

func TestStreamReaderEncodesFloat32LE(t *testing.T) {
	r := NewStreamReader(&constSource{value: 0.25})
	p := make([]byte, 8*3+5)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 24 {
		t.Fatalf("read %d bytes, want 24 (whole frames only)", n)
	}
	for i := 0; i < 6; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != 0.25 {
			t.Fatalf("sample %d = %v, want 0.25", i, got)
		}
	}
	if got := r.Frames(); got != 3 {
		t.Fatalf("frames = %d, want 3", got)
	}
}

func TestStreamReaderShortBuffer(t *testing.T) {
	r := NewStreamReader(&constSource{})
	n, err := r.Read(make([]byte, 7))
	if n != 0 || err != nil {
		t.Fatalf("got %d, %v; want 0, nil", n, err)
	}
}

func TestStreamReaderEOFWhenFinished(t *testing.T) {
	src := &constSource{}
	r := NewStreamReader(src)
	if _, err := r.Read(make([]byte, 16)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src.finished = true
	n, err := r.Read(make([]byte, 16))
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if n != 16 {
		t.Fatalf("final buffer should still be delivered, got %d bytes", n)
	}
}
