// Package accesslog decouples access accounting from the read path. Entries
// go through a bounded queue drained by a single goroutine; a full queue or
// a failing write drops the entry with a warning and never blocks or fails
// the read that produced it.
package accesslog

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/store"
	"github.com/meridianml/feature-store/internal/store/schema"
)

// Sink asynchronously appends access-log entries to the store
type Sink struct {
	store store.Store
	clock adapter.Clock
	ch    chan schema.AccessLog

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates a sink with the given queue size and starts its drain
// goroutine. Call Close to flush and stop it.
func NewSink(st store.Store, clock adapter.Clock, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &Sink{
		store: st,
		clock: clock,
		ch:    make(chan schema.AccessLog, queueSize),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

// Record enqueues an access-log entry. It never blocks: when the queue is
// full the entry is dropped and a warning logged.
func (s *Sink) Record(featureID, entityID string, accessType domain.AccessType, source string, responseTime *time.Duration) {
	entry := schema.AccessLog{
		LogID:         ulid.Make().String(),
		FeatureID:     featureID,
		EntityID:      entityID,
		AccessType:    accessType,
		AccessTime:    s.clock.Now(),
		RequestSource: source,
	}
	if responseTime != nil {
		ms := responseTime.Milliseconds()
		entry.ResponseTimeMs = &ms
	}

	select {
	case s.ch <- entry:
	default:
		logger.Warn("access log queue full, dropping entry",
			zap.String("feature_id", featureID),
			zap.String("entity_id", entityID))
	}
}

// Close stops accepting entries, flushes what is queued, and waits for the
// drain goroutine to finish
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		<-s.done
	})
}

func (s *Sink) drain() {
	defer close(s.done)
	for entry := range s.ch {
		if err := s.store.AppendAccessLog(context.Background(), &entry); err != nil {
			logger.Warn("failed to append access log",
				zap.String("log_id", entry.LogID),
				zap.Error(err))
		}
	}
}
