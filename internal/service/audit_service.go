package service

import (
	"context"
	"sync"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// DefaultAuditQueueSize is the number of entries buffered ahead of the
// writer before Log starts dropping.
const DefaultAuditQueueSize = 1024

// AuditServiceImpl writes audit entries to the log and, when a repository is
// set, persists them from a single background writer. Log never blocks the
// request path. A full queue drops the entry with a warning.
type AuditServiceImpl struct {
	repo  ports.AuditRepository
	log   zerolog.Logger
	queue chan *domain.AuditLog

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAuditService starts the writer. If repo is nil, audit entries are only
// written to the logger. Call Close on shutdown to flush the queue.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return NewAuditServiceWithQueue(repo, DefaultAuditQueueSize, log)
}

// NewAuditServiceWithQueue is NewAuditService with an explicit queue size.
func NewAuditServiceWithQueue(repo ports.AuditRepository, size int, log zerolog.Logger) *AuditServiceImpl {
	if size < 1 {
		size = 1
	}
	s := &AuditServiceImpl{
		repo:  repo,
		log:   log,
		queue: make(chan *domain.AuditLog, size),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Log enqueues an audit entry.
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn().Str("action", string(entry.Action)).Msg("audit service closed, entry dropped")
		return
	}
	select {
	case s.queue <- entry:
	default:
		s.log.Warn().Str("action", string(entry.Action)).Msg("audit queue full, entry dropped")
	}
}

// Close stops accepting entries and blocks until the queue is drained or ctx
// is done.
func (s *AuditServiceImpl) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditServiceImpl) run() {
	defer close(s.done)
	for entry := range s.queue {
		s.write(entry)
	}
}

func (s *AuditServiceImpl) write(entry *domain.AuditLog) {
	s.log.Info().
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress).
		Msg("audit")

	if s.repo == nil {
		return
	}
	if err := s.repo.Create(context.Background(), entry); err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
	}
}
