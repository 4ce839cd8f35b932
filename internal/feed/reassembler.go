package feed

// Reassembler turns an arbitrary byte stream into aligned fixed-size
// frames. The feed is a raw stream, not message-delimited; socket reads
// can split or coalesce frames arbitrarily. One Reassembler belongs to
// exactly one connection and is not safe for concurrent use.
type Reassembler struct {
	buf []byte
}

// Feed appends a chunk and returns every complete frame now available,
// in arrival order. Leftover bytes are retained for the next call. No
// byte is ever dropped.
func (r *Reassembler) Feed(chunk []byte) [][]byte {
	if len(r.buf) == 0 && len(chunk)%FrameSize == 0 {
		// Aligned fast path: slice the chunk in place.
		n := len(chunk) / FrameSize
		if n == 0 {
			return nil
		}
		frames := make([][]byte, 0, n)
		for off := 0; off < len(chunk); off += FrameSize {
			frames = append(frames, chunk[off:off+FrameSize])
		}
		return frames
	}

	r.buf = append(r.buf, chunk...)
	complete := len(r.buf) / FrameSize
	if complete == 0 {
		return nil
	}
	frames := make([][]byte, 0, complete)
	for i := 0; i < complete; i++ {
		frame := make([]byte, FrameSize)
		copy(frame, r.buf[i*FrameSize:(i+1)*FrameSize])
		frames = append(frames, frame)
	}
	rest := len(r.buf) - complete*FrameSize
	copy(r.buf, r.buf[complete*FrameSize:])
	r.buf = r.buf[:rest]
	return frames
}

// Pending returns the number of buffered bytes awaiting completion.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset discards any buffered bytes. Used when a connection drops, since
// a new connection restarts frame alignment.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
