package worker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/models"
)

const chatLockRetryDelay = 200 * time.Millisecond

// Router runs the per-message state machine: decode the envelope, dispatch
// by kind, publish the result and only then acknowledge the delivery. A
// handler error leaves the message unacknowledged so the broker redelivers
// it.
type Router struct {
	app     *App
	results ResultPublisher
}

// NewRouter wires a router to its result publisher.
func NewRouter(app *App, results ResultPublisher) *Router {
	return &Router{app: app, results: results}
}

// Run consumes deliveries until the channel closes or ctx is cancelled.
func (r *Router) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			r.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery to a terminal state.
func (r *Router) Handle(ctx context.Context, d amqp.Delivery) {
	var task models.TaskEnvelope
	if err := json.Unmarshal(d.Body, &task); err != nil {
		// A parse error cannot heal via redelivery; drop the message.
		r.app.Log.Error().Err(err).Msg("malformed task envelope, dropping")
		r.app.Metrics.TasksTotal.WithLabelValues("unknown", metrics.StatusMalformed).Inc()
		r.ack(d)
		return
	}

	log := r.app.Log.With().
		Str("kind", string(task.Kind)).
		Str("task_id", task.TaskID).
		Int64("user_id", task.UserID).
		Int64("student_id", task.StudentID).
		Logger()
	log.Info().Msg("task received")

	if task.TaskID != "" && !r.admit(ctx, d, &task, log) {
		return
	}

	start := time.Now()
	res, reserved, err := r.process(ctx, &task, log)
	r.app.Metrics.TaskDuration.WithLabelValues(string(task.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().Err(err).Msg("task failed, leaving for redelivery")
		r.refund(ctx, &task, reserved, log)
		r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), metrics.StatusFailed).Inc()
		r.nack(d, true)
		return
	}

	if res == nil {
		// end_chat and kindless drops produce no result envelope.
		r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), metrics.StatusCompleted).Inc()
		r.ack(d)
		return
	}

	// A task that terminated in an error or quota notice did no billable
	// work; hand the reserved unit back before delivering the notice.
	if res.Kind == models.ResultError || res.Kind == models.ResultQuotaExceeded {
		r.refund(ctx, &task, reserved, log)
		reserved = false
	}

	body, err := json.Marshal(res)
	if err != nil {
		log.Error().Err(err).Msg("marshal result")
		r.refund(ctx, &task, reserved, log)
		r.nack(d, true)
		return
	}
	if err := r.results.PublishResult(ctx, body); err != nil {
		// Publish failed: the task must stay unacknowledged so redelivery
		// retries the whole handler.
		log.Error().Err(err).Msg("publish result failed, leaving for redelivery")
		r.refund(ctx, &task, reserved, log)
		r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), metrics.StatusFailed).Inc()
		r.nack(d, true)
		return
	}

	if task.TaskID != "" {
		if err := r.app.Coord.MarkProcessed(ctx, task.TaskID); err != nil {
			log.Warn().Err(err).Msg("mark processed failed")
		}
	}
	r.ack(d)

	status := metrics.StatusCompleted
	if res.Kind == models.ResultQuotaExceeded {
		status = metrics.StatusQuota
	}
	r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), status).Inc()
	log.Info().Str("result", string(res.Kind)).Msg("task completed")
}

// admit enforces idempotency and the retry cap for tasks carrying an
// identifier. It returns false when the delivery reached a terminal state
// here.
func (r *Router) admit(ctx context.Context, d amqp.Delivery, task *models.TaskEnvelope, log zerolog.Logger) bool {
	done, err := r.app.Coord.IsProcessed(ctx, task.TaskID)
	if err != nil {
		log.Warn().Err(err).Msg("processed-marker lookup failed, proceeding")
	} else if done {
		log.Info().Msg("duplicate delivery of processed task, dropping")
		r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), metrics.StatusDuplicate).Inc()
		r.ack(d)
		return false
	}

	attempt, err := r.app.Coord.NextAttempt(ctx, task.TaskID)
	if err != nil {
		log.Warn().Err(err).Msg("attempt counter failed, proceeding")
		return true
	}
	if attempt > r.app.Cfg.MaxAttempts {
		log.Error().Int64("attempt", attempt).Msg("retry cap exhausted, dead-lettering")
		if task.UserID != 0 {
			r.publishBestEffort(ctx, errorResult(task, "The request could not be processed. Please try again later."), log)
		}
		r.app.Metrics.TasksTotal.WithLabelValues(string(task.Kind), metrics.StatusDead).Inc()
		r.nack(d, false)
		return false
	}
	return true
}

// process selects and runs the handler. The reserved return reports whether
// a quota unit was claimed and may need refunding.
func (r *Router) process(ctx context.Context, task *models.TaskEnvelope, log zerolog.Logger) (*models.ResultEnvelope, bool, error) {
	if task.Billable() {
		user, err := r.app.Store.GetUser(ctx, task.UserID)
		if err != nil {
			return nil, false, err
		}
		reserved := false
		if user != nil {
			ok, err := r.app.Store.ReserveUsage(ctx, user.ID, r.app.Cfg.QuotaFor(user.Plan))
			if err != nil {
				return nil, false, err
			}
			if !ok {
				log.Info().Str("plan", user.Plan).Msg("quota exhausted")
				return quotaResult(task), false, nil
			}
			reserved = true
		}
		var res *models.ResultEnvelope
		switch task.Kind {
		case models.TaskGeneratePlan:
			res, err = r.handleGeneratePlan(ctx, task, user, log)
		case models.TaskGenerateTasks:
			res, err = r.handleGenerateTasks(ctx, task, user, log)
		default:
			res, err = r.handleCheckHomework(ctx, task, user, log)
		}
		return res, reserved, err
	}

	switch task.Kind {
	case models.TaskChat:
		if err := r.acquireChatLock(ctx, task.UserID, task.StudentID); err != nil {
			return nil, false, err
		}
		defer func() {
			if err := r.app.Coord.ReleaseChatLock(context.WithoutCancel(ctx), task.UserID, task.StudentID); err != nil {
				log.Warn().Err(err).Msg("release chat lock failed")
			}
		}()
		res, err := r.handleChat(ctx, task, log)
		return res, false, err

	case models.TaskEndChat:
		return nil, false, r.handleEndChat(ctx, task)

	default:
		if task.UserID != 0 {
			return errorResult(task, "Unknown task type"), false, nil
		}
		log.Warn().Msg("unknown task kind without user, dropping")
		return nil, false, nil
	}
}

// acquireChatLock serializes chat turns for one conversation across
// workers.
func (r *Router) acquireChatLock(ctx context.Context, userID, studentID int64) error {
	for {
		ok, err := r.app.Coord.AcquireChatLock(ctx, userID, studentID, r.app.Cfg.ChatLockTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chatLockRetryDelay):
		}
	}
}

func (r *Router) refund(ctx context.Context, task *models.TaskEnvelope, reserved bool, log zerolog.Logger) {
	if !reserved {
		return
	}
	if err := r.app.Store.ReleaseUsage(context.WithoutCancel(ctx), task.UserID); err != nil {
		log.Warn().Err(err).Msg("release usage failed")
	}
}

func (r *Router) publishBestEffort(ctx context.Context, res *models.ResultEnvelope, log zerolog.Logger) {
	body, err := json.Marshal(res)
	if err != nil {
		log.Error().Err(err).Msg("marshal result")
		return
	}
	if err := r.results.PublishResult(ctx, body); err != nil {
		log.Error().Err(err).Msg("publish result failed")
	}
}

func (r *Router) ack(d amqp.Delivery) {
	if d.Acknowledger == nil {
		return
	}
	if err := d.Ack(false); err != nil {
		r.app.Log.Error().Err(err).Msg("ack failed")
	}
}

func (r *Router) nack(d amqp.Delivery, requeue bool) {
	if d.Acknowledger == nil {
		return
	}
	if err := d.Nack(false, requeue); err != nil {
		r.app.Log.Error().Err(err).Msg("nack failed")
	}
}

func errorResult(task *models.TaskEnvelope, msg string) *models.ResultEnvelope {
	return &models.ResultEnvelope{
		Kind:      models.ResultError,
		TaskID:    task.TaskID,
		UserID:    task.UserID,
		StudentID: task.StudentID,
		ErrorText: msg,
	}
}

func quotaResult(task *models.TaskEnvelope) *models.ResultEnvelope {
	return &models.ResultEnvelope{
		Kind:      models.ResultQuotaExceeded,
		TaskID:    task.TaskID,
		UserID:    task.UserID,
		StudentID: task.StudentID,
		ErrorText: "Usage limit for the current plan is exhausted.",
	}
}
