package pipeline

import (
	"context"
	"sync"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// StageFunc processes one message. Returning an error marks the message
// failed; the retry loop picks the chunk up again on the next attempt.
type StageFunc func(ctx context.Context, msg *Message) error

// runStage consumes in until it closes, runs fn on each message under a
// counting semaphore, forwards every message to out and closes out once
// all in-flight work has finished. Messages that arrive already failed
// are forwarded untouched so downstream stages see the full chunk set;
// an error is never cleared once set.
func runStage(ctx context.Context, name string, concurrency int, in <-chan *Message, out chan<- *Message, fn StageFunc) {
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for msg := range in {
		if msg.Failed() {
			out <- msg
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(msg *Message) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, msg); err != nil {
				msg.Fail(err)
				logger.Error("stage failed", err,
					logger.String("stage", name),
					logger.String("chunk", msg.Stem))
			}
			out <- msg
		}(msg)
	}

	wg.Wait()
	close(out)
	logger.Info("stage finished", logger.String("stage", name))
}
