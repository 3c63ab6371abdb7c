package engine

import (
	"time"

	"github.com/scrypster/lingua/pkg/types"
)

func newJob(msg types.Message) *Job {
	return &Job{Message: msg, Timestamp: time.Now()}
}

// enqueue attempts a non-blocking send. Callers hold e.mu for reading so the
// queue cannot be closed underneath them.
func (e *Engine) enqueue(job *Job) bool {
	if e.workerCtx != nil && e.workerCtx.Err() != nil {
		return false
	}
	select {
	case e.queue <- job:
		return true
	default:
		e.logger.Warn("engine: queue full, dropping message event",
			"queue_size", e.config.QueueSize, "message_id", job.Message.ID)
		e.metrics.EventDropped()
		return false
	}
}
