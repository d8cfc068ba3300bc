package resultrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/models"
)

type sentMessage struct {
	kind     string
	userID   int64
	text     string
	ref      string
	filename string
	data     []byte
}

type captureDelivery struct {
	err  error
	sent []sentMessage
}

func (c *captureDelivery) SendText(ctx context.Context, userID int64, text string) error {
	c.sent = append(c.sent, sentMessage{kind: "text", userID: userID, text: text})
	return c.err
}

func (c *captureDelivery) SendDocumentRef(ctx context.Context, userID int64, text, ref string) error {
	c.sent = append(c.sent, sentMessage{kind: "ref", userID: userID, text: text, ref: ref})
	return c.err
}

func (c *captureDelivery) SendDocumentBytes(ctx context.Context, userID int64, text, filename string, data []byte) error {
	c.sent = append(c.sent, sentMessage{kind: "bytes", userID: userID, text: text, filename: filename, data: data})
	return c.err
}

func (c *captureDelivery) SendError(ctx context.Context, userID int64, message string) error {
	c.sent = append(c.sent, sentMessage{kind: "error", userID: userID, text: message})
	return c.err
}

type countingAcknowledger struct {
	acks int
}

func (c *countingAcknowledger) Ack(tag uint64, multiple bool) error {
	c.acks++
	return nil
}

func (c *countingAcknowledger) Nack(tag uint64, multiple, requeue bool) error { return nil }
func (c *countingAcknowledger) Reject(tag uint64, requeue bool) error         { return nil }

func handleResult(t *testing.T, delivery *captureDelivery, res models.ResultEnvelope) *countingAcknowledger {
	t.Helper()
	body, err := json.Marshal(res)
	require.NoError(t, err)
	return handleRaw(delivery, body)
}

func handleRaw(delivery *captureDelivery, body []byte) *countingAcknowledger {
	r := New(delivery, zerolog.Nop(), metrics.New(prometheus.NewRegistry()))
	ackr := &countingAcknowledger{}
	r.Handle(context.Background(), amqp.Delivery{Acknowledger: ackr, DeliveryTag: 1, Body: body})
	return ackr
}

func TestHandleChatResult(t *testing.T) {
	delivery := &captureDelivery{}
	ackr := handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultChat, UserID: 7, Answer: "Sure, fractions first.",
	})

	require.Len(t, delivery.sent, 1)
	assert.Equal(t, sentMessage{kind: "text", userID: 7, text: "Sure, fractions first."}, delivery.sent[0])
	assert.Equal(t, 1, ackr.acks)
}

func TestHandlePlanWithRemoteArtifact(t *testing.T) {
	delivery := &captureDelivery{}
	handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultPlan, UserID: 7, StudentID: 3,
		PlanText: "Week 1", FileURL: models.FileStoredRemote,
	})

	require.Len(t, delivery.sent, 1)
	msg := delivery.sent[0]
	assert.Equal(t, "ref", msg.kind)
	assert.Equal(t, models.FileStoredRemote, msg.ref)
	assert.Contains(t, msg.text, "Week 1")
}

func TestHandleTasksWithInlineArtifact(t *testing.T) {
	delivery := &captureDelivery{}
	pdf := []byte("%PDF-1.4 tasks")
	handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultTasks, UserID: 7, StudentID: 3,
		TasksText: "1. T1", File: base64.StdEncoding.EncodeToString(pdf),
	})

	require.Len(t, delivery.sent, 1)
	msg := delivery.sent[0]
	assert.Equal(t, "bytes", msg.kind)
	assert.Equal(t, "Tasks_3.pdf", msg.filename)
	assert.Equal(t, pdf, msg.data)
}

func TestHandleCheckWithoutArtifactFallsBackToText(t *testing.T) {
	delivery := &captureDelivery{}
	handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultCheck, UserID: 7, StudentID: 3, ReportText: "Mostly correct",
	})

	require.Len(t, delivery.sent, 1)
	msg := delivery.sent[0]
	assert.Equal(t, "text", msg.kind)
	assert.Contains(t, msg.text, "Mostly correct")
}

func TestHandleErrorKinds(t *testing.T) {
	for _, kind := range []models.ResultKind{models.ResultError, models.ResultQuotaExceeded} {
		delivery := &captureDelivery{}
		handleResult(t, delivery, models.ResultEnvelope{
			Kind: kind, UserID: 7, ErrorText: "something went wrong",
		})

		require.Len(t, delivery.sent, 1, "kind %s", kind)
		assert.Equal(t, "error", delivery.sent[0].kind)
		assert.Equal(t, "something went wrong", delivery.sent[0].text)
	}
}

func TestHandleMalformedEnvelopeAcked(t *testing.T) {
	delivery := &captureDelivery{}
	ackr := handleRaw(delivery, []byte("{not json"))

	assert.Empty(t, delivery.sent)
	assert.Equal(t, 1, ackr.acks, "a malformed envelope is dropped, not redelivered")
}

func TestHandleUnknownKindDropped(t *testing.T) {
	delivery := &captureDelivery{}
	ackr := handleResult(t, delivery, models.ResultEnvelope{Kind: "telemetry", UserID: 7})

	assert.Empty(t, delivery.sent)
	assert.Equal(t, 1, ackr.acks)
}

func TestHandleDeliveryFailureStillAcks(t *testing.T) {
	delivery := &captureDelivery{err: fmt.Errorf("chat surface down")}
	ackr := handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultChat, UserID: 7, Answer: "hello",
	})

	assert.Equal(t, 1, ackr.acks, "delivery failures never requeue the envelope")
}

func TestHandleCorruptInlineArtifact(t *testing.T) {
	delivery := &captureDelivery{}
	ackr := handleResult(t, delivery, models.ResultEnvelope{
		Kind: models.ResultPlan, UserID: 7, StudentID: 3, PlanText: "Week 1", File: "!!not base64!!",
	})

	assert.Empty(t, delivery.sent)
	assert.Equal(t, 1, ackr.acks)
}
