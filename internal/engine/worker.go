package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// worker processes jobs until the queue is closed.
func (e *Engine) worker(workerID int) {
	defer e.workerWG.Done()

	e.logger.Debug("engine: worker started", "worker", workerID)
	for job := range e.queue {
		e.processJob(workerID, job)
	}
	e.logger.Debug("engine: worker stopped", "worker", workerID)
}

// processJob indexes the message and then runs auto-extraction. The two
// tasks are isolated: a failure or panic in one is logged and counted and
// never stops the other or the worker.
func (e *Engine) processJob(workerID int, job *Job) {
	ctx := e.workerCtx
	msg := job.Message
	onIndexed, onExtracted := e.callbacks()

	e.runTask(workerID, "index", msg.ID, func() error {
		outcome, err := e.indexer.IndexMessage(ctx, msg)
		if err != nil {
			return err
		}
		e.logger.Debug("engine: message indexed",
			"worker", workerID, "message_id", msg.ID, "outcome", outcome.String(),
			"latency", time.Since(job.Timestamp))
		if onIndexed != nil {
			onIndexed(msg, outcome)
		}
		return nil
	})

	if !e.autoExtract() {
		return
	}
	e.runTask(workerID, "extract", msg.ID, func() error {
		data, err := e.extractor.AutoExtract(ctx, msg)
		if err != nil {
			return err
		}
		if data != nil && data.Type != "" && onExtracted != nil {
			onExtracted(msg, data)
		}
		return nil
	})
}

func (e *Engine) runTask(workerID int, task, messageID string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.BackgroundFailure(task)
			e.logger.Error("engine: background task panicked",
				"worker", workerID, "task", task, "message_id", messageID,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	if err := fn(); err != nil {
		e.metrics.BackgroundFailure(task)
		e.logger.Warn("engine: background task failed",
			"worker", workerID, "task", task, "message_id", messageID, "error", err)
	}
}

func (e *Engine) startWorkerPool() {
	for i := 0; i < e.config.NumWorkers; i++ {
		e.workerWG.Add(1)
		go e.worker(i)
	}
}

// stopWorkerPool waits for the closed queue to drain.
func (e *Engine) stopWorkerPool(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()

	var timeout <-chan time.Time
	if e.config.ShutdownTimeout > 0 {
		timer := time.NewTimer(e.config.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return nil
	case <-timeout:
		e.logger.Warn("engine: shutdown timeout reached, cancelling remaining jobs",
			"remaining", len(e.queue))
		return nil
	case <-ctx.Done():
		e.logger.Warn("engine: context cancelled during shutdown, cancelling remaining jobs",
			"remaining", len(e.queue))
		return ctx.Err()
	}
}
