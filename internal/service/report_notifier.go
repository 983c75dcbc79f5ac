package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Reasons attached to report events.
const (
	ReportReasonTeacherGrade = "teacher_grade"
	ReportReasonManual       = "manual"
	ReportReasonGraded       = "graded"
)

// ReportEvent tells downstream report builders that a student's report is stale.
type ReportEvent struct {
	Source     string    `json:"source"`
	JobID      string    `json:"job_id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id,omitempty"`
	Reason     string    `json:"reason"`
	ActorID    uint      `json:"actor_id"`
	SentAt     time.Time `json:"sent_at"`
}

// ReportNotifier signals that a student's report needs regenerating.
type ReportNotifier interface {
	NotifyStale(ctx context.Context, event ReportEvent) error
}

type brokerReportNotifier struct {
	nats    *nats.Conn
	redis   *redis.Client
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// NewReportNotifier publishes report events to NATS and Redis pub/sub when
// either is configured, and only logs them otherwise.
func NewReportNotifier(natsConn *nats.Conn, redisClient *redis.Client, subject string, logger zerolog.Logger) ReportNotifier {
	if subject == "" {
		subject = "grader.reports.stale"
	}
	return &brokerReportNotifier{
		nats:    natsConn,
		redis:   redisClient,
		subject: subject,
		nodeID:  uuid.NewString(),
		logger:  logger.With().Str("component", "report_notifier").Logger(),
	}
}

func (n *brokerReportNotifier) NotifyStale(ctx context.Context, event ReportEvent) error {
	event.Source = n.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if n.nats == nil && n.redis == nil {
		n.logger.Info().
			Str("job_id", event.JobID).
			Str("student_id", event.StudentID).
			Str("reason", event.Reason).
			Msg("report regeneration requested")
		observability.ReportNotifications().WithLabelValues("logged").Inc()
		return nil
	}

	if n.nats != nil {
		if err := n.nats.Publish(n.subject, payload); err != nil {
			observability.ReportNotifications().WithLabelValues("failed").Inc()
			return err
		}
	}

	if n.redis != nil {
		if err := n.redis.Publish(ctx, n.subject, payload).Err(); err != nil {
			observability.ReportNotifications().WithLabelValues("failed").Inc()
			return err
		}
	}

	observability.ReportNotifications().WithLabelValues("published").Inc()
	return nil
}
