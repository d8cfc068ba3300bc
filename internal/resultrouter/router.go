// Package resultrouter consumes result envelopes and fans them out to the
// delivery channel matching the result kind.
package resultrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/models"
)

// Delivery is the outbound channel to the user. The chat surface behind it
// is external; the router only decides which shape of message to send.
type Delivery interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendDocumentRef(ctx context.Context, userID int64, text, ref string) error
	SendDocumentBytes(ctx context.Context, userID int64, text, filename string, data []byte) error
	SendError(ctx context.Context, userID int64, message string) error
}

// Router dispatches consumed result envelopes. Malformed envelopes are
// logged and dropped; a delivery failure is logged but never crashes the
// router or keeps the envelope for redelivery.
type Router struct {
	delivery Delivery
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a result router.
func New(delivery Delivery, log zerolog.Logger, m *metrics.Metrics) *Router {
	return &Router{delivery: delivery, log: log, metrics: m}
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

// Handle routes one result envelope to its delivery action.
func (r *Router) Handle(ctx context.Context, d amqp.Delivery) {
	defer r.ack(d)

	var res models.ResultEnvelope
	if err := json.Unmarshal(d.Body, &res); err != nil {
		r.log.Error().Err(err).Msg("malformed result envelope, dropping")
		return
	}

	log := r.log.With().
		Str("kind", string(res.Kind)).
		Str("task_id", res.TaskID).
		Int64("user_id", res.UserID).
		Logger()

	var err error
	switch res.Kind {
	case models.ResultPlan:
		err = r.sendWithArtifact(ctx, &res, "Study plan:\n"+res.PlanText, fmt.Sprintf("Plan_%d.pdf", res.StudentID))
	case models.ResultTasks:
		err = r.sendWithArtifact(ctx, &res, "Tasks:\n"+res.TasksText, fmt.Sprintf("Tasks_%d.pdf", res.StudentID))
	case models.ResultCheck:
		err = r.sendWithArtifact(ctx, &res, "Homework check:\n"+res.ReportText, fmt.Sprintf("Report_%d.pdf", res.StudentID))
	case models.ResultChat:
		err = r.delivery.SendText(ctx, res.UserID, res.Answer)
	case models.ResultError, models.ResultQuotaExceeded:
		err = r.delivery.SendError(ctx, res.UserID, res.ErrorText)
	default:
		log.Warn().Msg("unknown result kind, dropping")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("result delivery failed")
		return
	}
	r.metrics.ResultsTotal.WithLabelValues(string(res.Kind)).Inc()
}

func (r *Router) sendWithArtifact(ctx context.Context, res *models.ResultEnvelope, text, filename string) error {
	if res.FileURL != "" {
		return r.delivery.SendDocumentRef(ctx, res.UserID, text, res.FileURL)
	}
	if res.File != "" {
		data, err := base64.StdEncoding.DecodeString(res.File)
		if err != nil {
			return fmt.Errorf("decode inline artifact: %w", err)
		}
		return r.delivery.SendDocumentBytes(ctx, res.UserID, text, path.Base(filename), data)
	}
	return r.delivery.SendText(ctx, res.UserID, text)
}

func (r *Router) ack(d amqp.Delivery) {
	if d.Acknowledger == nil {
		return
	}
	if err := d.Ack(false); err != nil {
		r.log.Error().Err(err).Msg("ack failed")
	}
}
