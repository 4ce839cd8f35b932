package feed

import (
	"bytes"
	"testing"
)

func streamOfFrames(n int) []byte {
	stream := make([]byte, 0, n*FrameSize)
	for i := 0; i < n; i++ {
		frame := make([]byte, FrameSize)
		for j := range frame {
			frame[j] = byte(i*FrameSize + j)
		}
		stream = append(stream, frame...)
	}
	return stream
}

func TestReassemblerChunkSizes(t *testing.T) {
	stream := streamOfFrames(6)

	for _, chunkSize := range []int{1, 7, 30, 45, 90} {
		var r Reassembler
		var got []byte
		frames := 0
		for off := 0; off < len(stream); off += chunkSize {
			end := off + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			for _, frame := range r.Feed(stream[off:end]) {
				if len(frame) != FrameSize {
					t.Fatalf("chunk %d: frame length %d", chunkSize, len(frame))
				}
				got = append(got, frame...)
				frames++
			}
		}
		if frames != 6 {
			t.Fatalf("chunk %d: got %d frames, want 6", chunkSize, frames)
		}
		if !bytes.Equal(got, stream) {
			t.Fatalf("chunk %d: reassembled stream differs from input", chunkSize)
		}
		if r.Pending() != 0 {
			t.Fatalf("chunk %d: %d bytes left pending", chunkSize, r.Pending())
		}
	}
}

func TestReassemblerPartialThenRemainder(t *testing.T) {
	stream := streamOfFrames(2)
	var r Reassembler

	if frames := r.Feed(stream[:10]); len(frames) != 0 {
		t.Fatalf("partial chunk yielded %d frames", len(frames))
	}
	if r.Pending() != 10 {
		t.Fatalf("pending: got %d want 10", r.Pending())
	}

	frames := r.Feed(stream[10:45])
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], stream[:FrameSize]) {
		t.Fatal("first frame bytes mismatch")
	}
	if r.Pending() != 15 {
		t.Fatalf("pending: got %d want 15", r.Pending())
	}

	frames = r.Feed(stream[45:])
	if len(frames) != 1 || !bytes.Equal(frames[0], stream[FrameSize:]) {
		t.Fatalf("second frame mismatch: %d frames", len(frames))
	}
}

func TestReassemblerEmptyChunk(t *testing.T) {
	var r Reassembler
	if frames := r.Feed(nil); frames != nil {
		t.Fatalf("empty chunk yielded frames: %v", frames)
	}
}

func TestReassemblerReset(t *testing.T) {
	var r Reassembler
	r.Feed(make([]byte, 17))
	r.Reset()
	if r.Pending() != 0 {
		t.Fatalf("pending after reset: %d", r.Pending())
	}

	// A fresh connection must not inherit stale alignment.
	stream := streamOfFrames(1)
	frames := r.Feed(stream)
	if len(frames) != 1 || !bytes.Equal(frames[0], stream) {
		t.Fatal("frame after reset mismatch")
	}
}
