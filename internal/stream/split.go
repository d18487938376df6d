// Package stream provides a splitter that lets two consumers read one
// single-use body independently.
package stream

import (
	"errors"
	"io"
	"sync"
)

// chunkSize is the read size used when pulling from the source.
const chunkSize = 32 * 1024

// ErrClosed is returned by Read on a branch that has already been closed.
var ErrClosed = errors.New("stream: read on closed branch")

// Split returns two readers that each yield every byte of src, in order.
//
// Either branch may be read at its own pace: whichever branch is ahead pulls
// the next chunk from src and the chunk is retained until the other branch
// has consumed it or been closed. src is closed once both branches are closed.
func Split(src io.ReadCloser) (io.ReadCloser, io.ReadCloser) {
	s := &splitter{src: src}
	return &branch{s: s, id: 0}, &branch{s: s, id: 1}
}

type splitter struct {
	src    io.ReadCloser
	fillMu sync.Mutex // serializes reads from src

	mu sync.Mutex
	// buf holds bytes [base, base+len(buf)) of the source stream.
	buf    []byte
	base   int64
	pos    [2]int64
	closed [2]bool
	err    error // sticky source error, io.EOF at end of stream
	done   bool  // src has been closed
}

type branch struct {
	s  *splitter
	id int
}

func (b *branch) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := b.s
	for {
		s.mu.Lock()
		if s.closed[b.id] {
			s.mu.Unlock()
			return 0, ErrClosed
		}
		if off := s.pos[b.id] - s.base; off < int64(len(s.buf)) {
			n := copy(p, s.buf[off:])
			s.pos[b.id] += int64(n)
			s.compact()
			s.mu.Unlock()
			return n, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		s.mu.Unlock()

		s.fill()
	}
}

// fill reads one chunk from src into the shared buffer. Only one branch reads
// from src at a time; the other can keep draining buffered bytes meanwhile.
func (s *splitter) fill() {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	s.mu.Lock()
	stop := s.err != nil || s.done
	s.mu.Unlock()
	if stop {
		return
	}

	chunk := make([]byte, chunkSize)
	n, err := s.src.Read(chunk)

	s.mu.Lock()
	if !s.done {
		s.buf = append(s.buf, chunk[:n]...)
	}
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (b *branch) Close() error {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed[b.id] {
		return nil
	}
	s.closed[b.id] = true
	s.compact()

	if s.closed[0] && s.closed[1] && !s.done {
		s.done = true
		s.buf = nil
		return s.src.Close()
	}
	return nil
}

// compact drops buffered bytes that every open branch has already read.
// Callers hold s.mu.
func (s *splitter) compact() {
	low := s.base + int64(len(s.buf))
	for i := range s.pos {
		if !s.closed[i] && s.pos[i] < low {
			low = s.pos[i]
		}
	}
	drop := low - s.base
	if drop <= 0 {
		return
	}
	s.buf = s.buf[drop:]
	s.base = low
	if len(s.buf) == 0 {
		s.buf = nil
	}
}
