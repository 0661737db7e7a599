// Package provider defines the contract between the streaming session
// manager and whatever produces completion text.
package provider

import (
	"context"
	"sync"
)

// CompletionProvider turns a prompt into an ordered, finite sequence of text
// fragments. Complete may fail before returning a stream; the stream itself
// may fail between any two fragments.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (FragmentStream, error)
}

// Func adapts a function to CompletionProvider.
type Func func(ctx context.Context, prompt string) (FragmentStream, error)

func (f Func) Complete(ctx context.Context, prompt string) (FragmentStream, error) {
	return f(ctx, prompt)
}

// FragmentStream is a lazy, non-restartable pull iterator over fragments.
//
// Next returns ok=false with a nil error when the sequence ended normally,
// and a non-nil error when the producer failed. Callers must call Close
// when they stop pulling, whether or not the stream is exhausted.
type FragmentStream interface {
	Next(ctx context.Context) (fragment string, ok bool, err error)
	Close() error
}

// Producer writes fragments through emit, in order, and returns when the
// sequence is complete or failed. emit returns an error once the consumer
// has gone away; producers should return at that point.
type Producer func(ctx context.Context, emit func(fragment string) error) error

type producerStream struct {
	ch     <-chan string
	errCh  <-chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
}

// NewStream runs producer in its own goroutine and exposes its output as a
// FragmentStream. The producer only runs ahead of the consumer by the
// fragment it is currently handing over.
func NewStream(ctx context.Context, producer Producer) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		err := producer(ctx, func(fragment string) error {
			select {
			case ch <- fragment:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errCh <- err
		close(errCh)
		close(ch)
	}()

	return &producerStream{ch: ch, errCh: errCh, cancel: cancel}
}

func (s *producerStream) Next(ctx context.Context) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case fragment, open := <-s.ch:
		if !open {
			if e, ok := <-s.errCh; ok && e != nil {
				s.err = e
			}
			return "", false, s.err
		}
		return fragment, true, nil
	}
}

// Close cancels the producer and drains whatever it was handing over.
// Safe to call multiple times.
func (s *producerStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.ch {
		}
	})
	return nil
}

// FromSlice returns a stream that yields fragments and then ends, or fails
// with failure if it is non-nil.
func FromSlice(ctx context.Context, fragments []string, failure error) FragmentStream {
	return NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		for _, f := range fragments {
			if err := emit(f); err != nil {
				return err
			}
		}
		return failure
	})
}
