package resultrouter

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// webhookPayload is the JSON body posted to the delivery webhook.
type webhookPayload struct {
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	Ref      string `json:"ref,omitempty"`
	Filename string `json:"filename,omitempty"`
	File     string `json:"file,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// WebhookDelivery posts delivery actions to an external chat surface.
type WebhookDelivery struct {
	http *resty.Client
}

// NewWebhookDelivery creates a delivery posting to url.
func NewWebhookDelivery(url string, timeout time.Duration) *WebhookDelivery {
	return &WebhookDelivery{
		http: resty.New().SetBaseURL(url).SetTimeout(timeout),
	}
}

func (w *WebhookDelivery) post(ctx context.Context, p webhookPayload) error {
	resp, err := w.http.R().SetContext(ctx).SetBody(p).Post("")
	if err != nil {
		return fmt.Errorf("deliver %s: %w", p.Kind, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("deliver %s: status %d", p.Kind, resp.StatusCode())
	}
	return nil
}

// SendText delivers a plain text message.
func (w *WebhookDelivery) SendText(ctx context.Context, userID int64, text string) error {
	return w.post(ctx, webhookPayload{UserID: userID, Kind: "text", Text: text})
}

// SendDocumentRef delivers text plus a reference to a remotely stored
// document.
func (w *WebhookDelivery) SendDocumentRef(ctx context.Context, userID int64, text, ref string) error {
	return w.post(ctx, webhookPayload{UserID: userID, Kind: "document_ref", Text: text, Ref: ref})
}

// SendDocumentBytes delivers text plus the document itself.
func (w *WebhookDelivery) SendDocumentBytes(ctx context.Context, userID int64, text, filename string, data []byte) error {
	return w.post(ctx, webhookPayload{
		UserID:   userID,
		Kind:     "document",
		Text:     text,
		Filename: filename,
		File:     base64.StdEncoding.EncodeToString(data),
	})
}

// SendError delivers an error notice.
func (w *WebhookDelivery) SendError(ctx context.Context, userID int64, message string) error {
	return w.post(ctx, webhookPayload{UserID: userID, Kind: "error", Text: message, IsError: true})
}

// LogDelivery writes delivery actions to the log; it stands in when no
// webhook is configured.
type LogDelivery struct {
	Log zerolog.Logger
}

// SendText logs a text delivery.
func (l LogDelivery) SendText(ctx context.Context, userID int64, text string) error {
	l.Log.Info().Int64("user_id", userID).Str("text", text).Msg("deliver text")
	return nil
}

// SendDocumentRef logs a document-reference delivery.
func (l LogDelivery) SendDocumentRef(ctx context.Context, userID int64, text, ref string) error {
	l.Log.Info().Int64("user_id", userID).Str("ref", ref).Str("text", text).Msg("deliver document ref")
	return nil
}

// SendDocumentBytes logs an inline-document delivery.
func (l LogDelivery) SendDocumentBytes(ctx context.Context, userID int64, text, filename string, data []byte) error {
	l.Log.Info().Int64("user_id", userID).Str("filename", filename).Int("bytes", len(data)).Msg("deliver document")
	return nil
}

// SendError logs an error delivery.
func (l LogDelivery) SendError(ctx context.Context, userID int64, message string) error {
	l.Log.Warn().Int64("user_id", userID).Str("message", message).Msg("deliver error")
	return nil
}
