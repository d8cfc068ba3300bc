// Package dispatch maps user interactions to task envelopes and publishes
// them. Publishing never waits for the result; the result queue closes the
// loop.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/models"
)

// TaskPublisher publishes a task envelope to the task queue.
type TaskPublisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// Dispatcher builds and publishes task envelopes. Every task gets a fresh
// identifier used for idempotent redelivery and log correlation.
type Dispatcher struct {
	pub TaskPublisher
	log zerolog.Logger
}

// New creates a dispatcher.
func New(pub TaskPublisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, log: log}
}

// GeneratePlan enqueues a study-plan generation task.
func (d *Dispatcher) GeneratePlan(ctx context.Context, userID, studentID int64, description string) (string, error) {
	return d.publish(ctx, &models.TaskEnvelope{
		Kind:        models.TaskGeneratePlan,
		UserID:      userID,
		StudentID:   studentID,
		Description: description,
	})
}

// GenerateTasks enqueues a practice-tasks generation task.
func (d *Dispatcher) GenerateTasks(ctx context.Context, userID, studentID int64, description string) (string, error) {
	return d.publish(ctx, &models.TaskEnvelope{
		Kind:        models.TaskGenerateTasks,
		UserID:      userID,
		StudentID:   studentID,
		Description: description,
	})
}

// CheckHomework enqueues a homework-check task.
func (d *Dispatcher) CheckHomework(ctx context.Context, userID, studentID int64, solutionText, filename string) (string, error) {
	return d.publish(ctx, &models.TaskEnvelope{
		Kind:         models.TaskCheckHomework,
		UserID:       userID,
		StudentID:    studentID,
		SolutionText: solutionText,
		Filename:     filename,
	})
}

// Chat enqueues a chat turn.
func (d *Dispatcher) Chat(ctx context.Context, userID, studentID int64, message string) (string, error) {
	return d.publish(ctx, &models.TaskEnvelope{
		Kind:      models.TaskChat,
		UserID:    userID,
		StudentID: studentID,
		Message:   message,
	})
}

// EndChat enqueues a fire-and-forget conversation clear.
func (d *Dispatcher) EndChat(ctx context.Context, userID, studentID int64) (string, error) {
	return d.publish(ctx, &models.TaskEnvelope{
		Kind:      models.TaskEndChat,
		UserID:    userID,
		StudentID: studentID,
	})
}

// publish assigns the task id, serializes and publishes. A broker failure
// propagates to the caller; it is never swallowed here.
func (d *Dispatcher) publish(ctx context.Context, task *models.TaskEnvelope) (string, error) {
	task.TaskID = uuid.NewString()
	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	if err := d.pub.PublishTask(ctx, body); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Kind, err)
	}
	d.log.Info().
		Str("kind", string(task.Kind)).
		Str("task_id", task.TaskID).
		Int64("user_id", task.UserID).
		Msg("task enqueued")
	return task.TaskID, nil
}
