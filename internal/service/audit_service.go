package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorder records security relevant events.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is the input for a single audit record.
type AuditEntry struct {
	UserID   string
	Action   string
	Meta     models.RequestMeta
	Metadata map[string]interface{}
}

// AuditConfig sizes the audit writer pool.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// AuditService writes audit entries off the request path through a job
// queue. Entries are dropped, never blocked on, when the queue is full.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service. Start must be called before
// entries are persisted.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the writer workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an audit entry.
func (s *AuditService) Record(_ context.Context, entry AuditEntry) {
	log, err := buildAuditLog(entry)
	if err != nil {
		s.logger.Warn("failed to build audit log", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log}); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit log dropped", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.repo.Create(ctx, log)
}

func buildAuditLog(entry AuditEntry) (*models.AuditLog, error) {
	log := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    entry.Action,
		IPAddress: entry.Meta.IP,
		UserAgent: entry.Meta.UserAgent,
	}
	if entry.UserID != "" {
		userID := entry.UserID
		log.UserID = &userID
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, err
		}
		log.Metadata = raw
	}
	return log, nil
}

type nopAuditRecorder struct{}

func (nopAuditRecorder) Record(context.Context, AuditEntry) {}
