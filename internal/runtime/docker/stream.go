package docker

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"
)

// StreamType tags which output a chunk was written to.
type StreamType int

const (
	Stdout StreamType = iota + 1
	Stderr
)

// Chunk is one piece of multiplexed exec output.
type Chunk struct {
	Stream StreamType
	Data   []byte
}

var errStreamClosed = errors.New("chunk stream closed")

// ChunkStream demultiplexes a Docker exec stream into tagged chunks.
// Next returns io.EOF once the exec output has been fully consumed.
type ChunkStream struct {
	chunks chan Chunk
	done   chan struct{}
	once   sync.Once
	err    error
}

func newChunkStream(r io.Reader) *ChunkStream {
	s := &ChunkStream{
		chunks: make(chan Chunk, 16),
		done:   make(chan struct{}),
	}
	go s.pump(r)
	return s
}

func (s *ChunkStream) pump(r io.Reader) {
	defer close(s.chunks)
	_, err := stdcopy.StdCopy(&chunkWriter{stream: s, typ: Stdout}, &chunkWriter{stream: s, typ: Stderr}, r)
	if err != nil && !errors.Is(err, errStreamClosed) {
		s.err = err
	}
}

// Next blocks until the next chunk, the end of the stream, or ctx is done.
func (s *ChunkStream) Next(ctx context.Context) (Chunk, error) {
	select {
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	case chunk, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return Chunk{}, s.err
			}
			return Chunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Close stops delivering chunks. The underlying reader must be closed
// separately to unblock a pending read.
func (s *ChunkStream) Close() {
	s.once.Do(func() { close(s.done) })
}

type chunkWriter struct {
	stream *ChunkStream
	typ    StreamType
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)

	select {
	case w.stream.chunks <- Chunk{Stream: w.typ, Data: data}:
		return len(p), nil
	case <-w.stream.done:
		return 0, errStreamClosed
	}
}
