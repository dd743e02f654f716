package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/service"
)

// NotifyPollTimeout bounds each blocking pop on the notification queue.
const NotifyPollTimeout = 1 * time.Second

// Publisher is the subset of *amqp.Channel the worker needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RosterLister returns the students enrolled in a grade.
type RosterLister interface {
	ListByGrade(ctx context.Context, grade string) ([]model.Student, error)
}

// NotificationWorker consumes notify_exam_created_queue and fans each job
// out to one broker message per eligible student.
type NotificationWorker struct {
	rdb      *redis.Client
	exams    service.ExamSource
	students RosterLister
	pub      Publisher
	exchange string
	log      zerolog.Logger
}

// NewNotificationWorker creates a new NotificationWorker. A nil publisher
// means jobs are drained and logged only.
func NewNotificationWorker(rdb *redis.Client, exams service.ExamSource, students RosterLister, pub Publisher, exchange string, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		rdb:      rdb,
		exams:    exams,
		students: students,
		pub:      pub,
		exchange: exchange,
		log:      log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotificationWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("NotificationWorker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotificationWorker) processNext(ctx context.Context) {
	item, err := w.rdb.BLPop(ctx, NotifyPollTimeout, config.WorkerKey.NotifyExamCreatedQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}
	if len(item) < 2 {
		return
	}

	var job model.ExamCreatedJob
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return
	}

	if err := w.Handle(ctx, job); err != nil {
		w.log.Error().Err(err).Str("exam_id", job.ExamID.String()).Msg("Notification job failed")
		if job.Retried {
			return
		}
		job.Retried = true
		raw, _ := json.Marshal(job)
		if err := w.rdb.RPush(ctx, config.WorkerKey.NotifyExamCreatedQueue, raw).Err(); err != nil {
			w.log.Error().Err(err).Msg("Requeue failed")
		}
	}
}

// Handle publishes the exam-created notification to every student of the
// exam's grade. A deleted exam is dropped silently.
func (w *NotificationWorker) Handle(ctx context.Context, job model.ExamCreatedJob) error {
	exam, err := w.exams.Get(ctx, job.ExamID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load exam: %w", err)
	}

	roster, err := w.students.ListByGrade(ctx, exam.Grade)
	if err != nil {
		return fmt.Errorf("list roster: %w", err)
	}

	if w.pub == nil {
		w.log.Info().
			Str("exam_id", exam.ID.String()).
			Str("grade", exam.Grade).
			Int("recipients", len(roster)).
			Msg("Broker not configured, skipping publish")
		metrics.NotificationsPublished.WithLabelValues("skipped").Add(float64(len(roster)))
		return nil
	}

	routingKey := RoutingKey(exam.Grade)
	var failed int
	for _, st := range roster {
		body, err := json.Marshal(model.ExamCreatedNotification{
			ExamID:         exam.ID,
			StudentID:      st.ID,
			Title:          exam.Title,
			Grade:          exam.Grade,
			ScheduledStart: exam.ScheduledStart,
			EndsAt:         exam.EndsAt,
		})
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}

		err = w.pub.PublishWithContext(ctx, w.exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err != nil {
			failed++
			metrics.NotificationsPublished.WithLabelValues("failed").Inc()
			w.log.Warn().Err(err).Int("student_id", st.ID).Msg("Publish failed")
			continue
		}
		metrics.NotificationsPublished.WithLabelValues("published").Inc()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d notifications not published", failed, len(roster))
	}
	return nil
}

// RoutingKey is the topic routing key for a grade's exam-created messages.
func RoutingKey(grade string) string {
	return "exam.created." + grade
}
