// Package audit records significant actions (submissions, drafts, uploads,
// reviewer logins and schema refreshes) in the audit_log table. Events are
// written asynchronously so that logging never blocks or fails a request.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// eventChannelSize is the buffer size for the async event channel. When it
// is full, events are dropped.
const eventChannelSize = 256

// writeTimeout bounds a single audit insert.
const writeTimeout = 5 * time.Second

// Actions recorded by the service.
const (
	ActionSubmissionCreate = "submission.create"
	ActionSubmissionDelete = "submission.delete"
	ActionDraftSave        = "draft.save"
	ActionDraftDelete      = "draft.delete"
	ActionAttachmentUpload = "attachment.upload"
	ActionAttachmentDelete = "attachment.delete"
	ActionLoginSuccess     = "reviewer.login.success"
	ActionLoginFailure     = "reviewer.login.failure"
	ActionSchemaRefresh    = "schema.refresh"
)

// Event is an audit event to be logged.
type Event struct {
	Action     string
	ActorID    string // reviewer UUID, empty for anonymous respondents
	Resource   string // form name, "attachments" or "schema"
	ResourceID string
	Payload    map[string]any
}

// eventWriter persists events. *Repository implements it.
type eventWriter interface {
	Insert(ctx context.Context, event Event) error
}

// Service provides asynchronous audit logging backed by a buffered channel
// and a single writer goroutine.
type Service struct {
	repo         *Repository
	writer       eventWriter
	eventCh      chan Event
	done         chan struct{}
	droppedCount atomic.Uint64
}

// NewService creates a new audit Service. Call Start to begin processing
// events and Shutdown to drain and stop.
func NewService(repo *Repository) *Service {
	return newService(repo, repo)
}

func newService(repo *Repository, w eventWriter) *Service {
	return &Service{
		repo:    repo,
		writer:  w,
		eventCh: make(chan Event, eventChannelSize),
		done:    make(chan struct{}),
	}
}

// Log queues an event without blocking. A nil Service discards events.
func (s *Service) Log(_ context.Context, event Event) {
	if s == nil {
		return
	}
	select {
	case s.eventCh <- event:
	default:
		dropped := s.droppedCount.Add(1)
		slog.Warn("audit event channel full, dropping event",
			"action", event.Action,
			"resource", event.Resource,
			"resource_id", event.ResourceID,
			"total_dropped", dropped,
		)
	}
}

// Start launches the background writer. Must be called once.
func (s *Service) Start() {
	go s.processEvents()
}

// Shutdown closes the queue and waits for buffered events to be written.
// It always waits for the writer to finish, even after ctx expires, so no
// insert races process exit.
func (s *Service) Shutdown(ctx context.Context) {
	close(s.eventCh)

	select {
	case <-s.done:
		slog.Info("audit service shutdown complete")
	case <-ctx.Done():
		slog.Warn("audit service shutdown timeout, still waiting for drain")
		<-s.done
	}
}

func (s *Service) processEvents() {
	defer close(s.done)
	for event := range s.eventCh {
		s.writeEvent(event)
	}
}

// writeEvent inserts one event. The request context may be gone by now, so
// a fresh one is used; errors are only logged.
func (s *Service) writeEvent(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.writer.Insert(ctx, event); err != nil {
		slog.Error("failed to write audit event",
			"action", event.Action,
			"resource", event.Resource,
			"resource_id", event.ResourceID,
			"error", err,
		)
	}
}

// DroppedCount returns the number of events dropped since start.
func (s *Service) DroppedCount() uint64 {
	return s.droppedCount.Load()
}

// List returns a page of audit entries, newest first, with the total count.
func (s *Service) List(ctx context.Context, filters Filters, page, perPage int) ([]*Entry, int, error) {
	return s.repo.List(ctx, filters, page, perPage)
}
