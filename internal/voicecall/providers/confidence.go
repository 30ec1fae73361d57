package providers

import (
	"context"
	"sync"
)

// confidenceFloor filters a recognizer's results against the configured
// confidence threshold. Results below the floor are treated as noise and
// never reach the consumer.
type confidenceFloor struct {
	inner     SpeechRecognizer
	threshold float64

	once sync.Once
	out  chan RecognitionResult
}

func newConfidenceFloor(inner SpeechRecognizer, threshold float64) *confidenceFloor {
	return &confidenceFloor{
		inner:     inner,
		threshold: threshold,
		out:       make(chan RecognitionResult, 16),
	}
}

func (c *confidenceFloor) SubmitAudio(ctx context.Context, chunk []byte) error {
	return c.inner.SubmitAudio(ctx, chunk)
}

// Results forwards the inner stream, dropping sub-threshold results. The
// filter goroutine exits when the inner channel closes, so Close follows the
// inner recognizer's semantics.
func (c *confidenceFloor) Results() <-chan RecognitionResult {
	c.once.Do(func() {
		go func() {
			defer close(c.out)
			for r := range c.inner.Results() {
				if r.Confidence < c.threshold {
					continue
				}
				c.out <- r
			}
		}()
	})
	return c.out
}

func (c *confidenceFloor) Close() error {
	return c.inner.Close()
}
