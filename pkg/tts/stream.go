package tts

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// streamChunkSize is how much audio is read per Output.Write.
const streamChunkSize = 4096

// segItem is either a text segment or a flush marker.
type segItem struct {
	text    string
	flushed chan struct{}
}

// segmentStream synthesizes queued text segments in order, delivering
// audio chunks to the Output as they arrive. The Output is initialized
// lazily on the first audio byte of the whole stream.
type segmentStream struct {
	client *Client
	out    Output

	ctx    context.Context
	cancel context.CancelFunc

	segments chan segItem
	done     chan struct{}

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	err    error
	closed bool
}

// WriteText queues one text segment. Empty segments are ignored.
func (s *segmentStream) WriteText(segment string) error {
	if segment == "" {
		return nil
	}
	if err := s.failure(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	select {
	case s.segments <- segItem{text: segment}:
		return nil
	case <-s.ctx.Done():
		return ErrStreamClosed
	}
}

// Flush blocks until every segment queued before it has produced audio.
func (s *segmentStream) Flush(ctx context.Context) error {
	marker := segItem{flushed: make(chan struct{})}

	select {
	case s.segments <- marker:
	case <-s.ctx.Done():
		return s.failureOr(ErrStreamClosed)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return s.failure()
	case <-s.ctx.Done():
		return s.failureOr(ErrStreamClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close abandons the stream. Idempotent.
func (s *segmentStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// run is the worker loop, one synthesis request per segment.
func (s *segmentStream) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.segments:
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			if err := s.synthesizeSegment(item.text); err != nil {
				s.recordErr(err)
			}
		}
	}
}

// synthesizeSegment streams one segment's audio into the output.
func (s *segmentStream) synthesizeSegment(text string) error {
	resp, err := s.client.request(s.ctx, text)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			// First audio byte of the stream initializes the output.
			s.initOnce.Do(func() {
				s.initErr = s.out.Init(s.client.format())
			})
			if s.initErr != nil {
				return s.initErr
			}
			if err := s.out.Write(buf[:n]); err != nil {
				return WrapError(fmt.Errorf("write audio: %w", err))
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return WrapError(fmt.Errorf("read audio: %w", readErr))
		}
	}
}

func (s *segmentStream) recordErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.client.logger.Error("segment synthesis failed", "error", err)
}

func (s *segmentStream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *segmentStream) failureOr(fallback error) error {
	if err := s.failure(); err != nil {
		return err
	}
	return fallback
}

// Verify segmentStream implements Stream at compile time.
var _ Stream = (*segmentStream)(nil)
