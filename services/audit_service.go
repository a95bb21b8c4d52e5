// services/audit_service.go
package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/models"
	"github.com/wfunc/crosskey/persistence"
)

const (
	defaultQueueSize  = 1024
	defaultBatchSize  = 50
	defaultFlushEvery = 500 * time.Millisecond
	writeTimeout      = 5 * time.Second
)

// Recorder accepts audit records without blocking the caller.
type Recorder interface {
	Record(evt models.RoomEvent)
}

// AuditService 异步批量写入审计记录: 满 50 条或每 500ms 落库一次
type AuditService struct {
	store      persistence.Store
	buffer     chan models.RoomEvent
	batchSize  int
	flushEvery time.Duration
	dropped    atomic.Int64
	onDrop     func()
}

func NewAuditService(store persistence.Store, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &AuditService{
		store:      store,
		buffer:     make(chan models.RoomEvent, queueSize),
		batchSize:  defaultBatchSize,
		flushEvery: defaultFlushEvery,
	}
}

// OnDrop registers a hook called for each record dropped on a full queue.
func (s *AuditService) OnDrop(fn func()) {
	s.onDrop = fn
}

// Record enqueues evt; when the queue is full the record is dropped.
func (s *AuditService) Record(evt models.RoomEvent) {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	select {
	case s.buffer <- evt:
	default:
		n := s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
		logger.Log.Warnw("audit queue full, record dropped", "code", evt.Code, "kind", evt.Kind, "dropped", n)
	}
}

// Dropped 被丢弃的记录数
func (s *AuditService) Dropped() int64 {
	return s.dropped.Load()
}

// Run drains the queue until ctx is done, then flushes what is left.
func (s *AuditService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	batch := make([]models.RoomEvent, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.store.SaveRoomEvents(writeCtx, batch); err != nil {
			logger.Log.Errorw("audit batch write failed", "records", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-s.buffer:
			batch = append(batch, evt)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case evt := <-s.buffer:
					batch = append(batch, evt)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
