package worker

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/crypto"
	"github.com/max-hertz-coder/RiverAI/internal/models"
	"github.com/max-hertz-coder/RiverAI/internal/storage"
)

const (
	fallbackNoAnswer   = "(no answer)"
	fallbackGeneration = "Generation failed, please try again later."
	tasksDelimiter     = "@"
)

func (r *Router) handleGeneratePlan(ctx context.Context, task *models.TaskEnvelope, user *storage.User, log zerolog.Logger) (*models.ResultEnvelope, error) {
	subject, level, err := r.studentContext(ctx, task.StudentID, log)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Compose a study plan for the subject %s at %s level, taking into account: %s. Present the plan as a list of topics or lessons.",
		subject.Or("N/A"), level.Or("N/A"), task.Description)
	answer, err := r.complete(ctx, models.Conversation{{Role: models.RoleUser, Content: prompt}}, r.modelFor(user))
	if err != nil {
		log.Error().Err(err).Msg("completion failed")
		return errorResult(task, fallbackGeneration), nil
	}
	planText := strings.TrimSpace(answer)
	if planText == "" {
		planText = fallbackNoAnswer
	}

	pdfPath := r.renderArtifact(ctx, log, func(rctx context.Context) (string, error) {
		return r.app.Renderer.Plan(rctx, planText)
	})
	fileURL, fileB64 := r.placeArtifact(ctx, user, pdfPath, fmt.Sprintf("AI_Tutor/Plan_%d.pdf", task.StudentID), log)

	return &models.ResultEnvelope{
		Kind:      models.ResultPlan,
		TaskID:    task.TaskID,
		UserID:    task.UserID,
		StudentID: task.StudentID,
		PlanText:  planText,
		FileURL:   fileURL,
		File:      fileB64,
	}, nil
}

func (r *Router) handleGenerateTasks(ctx context.Context, task *models.TaskEnvelope, user *storage.User, log zerolog.Logger) (*models.ResultEnvelope, error) {
	subject, level, err := r.studentContext(ctx, task.StudentID, log)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Compose a set of practice tasks for the subject %s at %s level, taking into account: %s. "+
			"Provide tasks and solutions, separating the parts with the '%s' character.",
		subject.Or("N/A"), level.Or("N/A"), task.Description, tasksDelimiter)
	answer, err := r.complete(ctx, models.Conversation{{Role: models.RoleUser, Content: prompt}}, r.modelFor(user))
	if err != nil {
		log.Error().Err(err).Msg("completion failed")
		return errorResult(task, fallbackGeneration), nil
	}

	// Alternating task/solution segments; an odd split leaves a final task
	// without a solution, which the renderer tolerates.
	parts := strings.Split(answer, tasksDelimiter)

	pdfPath := r.renderArtifact(ctx, log, func(rctx context.Context) (string, error) {
		return r.app.Renderer.Tasks(rctx, parts)
	})
	fileURL, fileB64 := r.placeArtifact(ctx, user, pdfPath, fmt.Sprintf("AI_Tutor/Tasks_%d.pdf", task.StudentID), log)

	return &models.ResultEnvelope{
		Kind:      models.ResultTasks,
		TaskID:    task.TaskID,
		UserID:    task.UserID,
		StudentID: task.StudentID,
		TasksText: tasksSummary(parts),
		FileURL:   fileURL,
		File:      fileB64,
	}, nil
}

func (r *Router) handleCheckHomework(ctx context.Context, task *models.TaskEnvelope, user *storage.User, log zerolog.Logger) (*models.ResultEnvelope, error) {
	subject, level, err := r.studentContext(ctx, task.StudentID, log)
	if err != nil {
		return nil, err
	}

	solution := task.SolutionText
	if solution == "" {
		solution = "(file)"
	}
	prompt := fmt.Sprintf(
		"Check this solution for the subject %s at %s level. Solution: %s\n"+
			"Explain the mistakes and the correct answers, and list the outcome for every item.",
		subject.Or("N/A"), level.Or("N/A"), solution)
	answer, err := r.complete(ctx, models.Conversation{{Role: models.RoleUser, Content: prompt}}, r.modelFor(user))
	if err != nil {
		log.Error().Err(err).Msg("completion failed")
		return errorResult(task, fallbackGeneration), nil
	}
	reportText := strings.TrimSpace(answer)
	if reportText == "" {
		reportText = fallbackNoAnswer
	}

	pdfPath := r.renderArtifact(ctx, log, func(rctx context.Context) (string, error) {
		return r.app.Renderer.Report(rctx, reportText)
	})
	fileURL, fileB64 := r.placeArtifact(ctx, user, pdfPath, fmt.Sprintf("AI_Tutor/Report_%d.pdf", task.StudentID), log)

	return &models.ResultEnvelope{
		Kind:       models.ResultCheck,
		TaskID:     task.TaskID,
		UserID:     task.UserID,
		StudentID:  task.StudentID,
		ReportText: reportText,
		FileURL:    fileURL,
		File:       fileB64,
	}, nil
}

func (r *Router) handleChat(ctx context.Context, task *models.TaskEnvelope, log zerolog.Logger) (*models.ResultEnvelope, error) {
	conv, found, err := r.app.Cache.Get(ctx, task.UserID, task.StudentID)
	if err != nil {
		return nil, err
	}
	if !found || len(conv) == 0 {
		// First turn: seed a system turn from the student profile.
		student, err := r.app.Store.GetStudent(ctx, task.StudentID)
		if err != nil {
			return nil, err
		}
		if student != nil {
			subject := r.decryptField(student.SubjectEnc, "subject", log)
			level := r.decryptField(student.LevelEnc, "level", log)
			conv = conv.Append(models.RoleSystem, fmt.Sprintf(
				"You are a helpful tutor assistant. The student is learning %s at %s level.",
				subject.Value, level.Value))
		}
	}
	conv = conv.Append(models.RoleUser, task.Message)

	user, err := r.app.Store.GetUser(ctx, task.UserID)
	if err != nil {
		return nil, err
	}
	answer, err := r.complete(ctx, conv, r.modelFor(user))
	if err != nil {
		log.Error().Err(err).Msg("completion failed")
		return errorResult(task, fallbackGeneration), nil
	}
	reply := strings.TrimSpace(answer)
	if reply == "" {
		reply = "No answer received, please try again."
	}

	conv = conv.Append(models.RoleAssistant, reply)
	conv = conv.Trim(r.app.Cfg.MaxHistoryTurns)
	if err := r.app.Cache.Save(ctx, task.UserID, task.StudentID, conv); err != nil {
		return nil, err
	}

	return &models.ResultEnvelope{
		Kind:      models.ResultChat,
		TaskID:    task.TaskID,
		UserID:    task.UserID,
		StudentID: task.StudentID,
		Answer:    reply,
	}, nil
}

// handleEndChat clears the conversation. It never touches the completion
// capability and produces no result envelope.
func (r *Router) handleEndChat(ctx context.Context, task *models.TaskEnvelope) error {
	return r.app.Cache.Clear(ctx, task.UserID, task.StudentID)
}

// complete invokes the completion capability under the configured timeout.
func (r *Router) complete(ctx context.Context, turns models.Conversation, model string) (string, error) {
	if r.app.Cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.app.Cfg.CompletionTimeout)
		defer cancel()
	}
	return r.app.Completer.Complete(ctx, turns, model)
}

// renderArtifact runs the renderer and degrades to no artifact on failure.
func (r *Router) renderArtifact(ctx context.Context, log zerolog.Logger, render func(context.Context) (string, error)) string {
	path, err := render(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("render failed, falling back to text-only delivery")
		return ""
	}
	return path
}

// placeArtifact uploads the artifact to the user's remote storage when a
// credential is configured, falling back to inline base64 bytes. Returns
// (fileURL, fileB64); both empty means text-only.
func (r *Router) placeArtifact(ctx context.Context, user *storage.User, pdfPath, remotePath string, log zerolog.Logger) (string, string) {
	if pdfPath == "" {
		return "", ""
	}
	if user != nil && user.DiskTokenEnc != "" {
		token := r.decryptField(user.DiskTokenEnc, "disk_token", log)
		if token.State == crypto.FieldOK && token.Value != "" {
			uctx := ctx
			if r.app.Cfg.UploadTimeout > 0 {
				var cancel context.CancelFunc
				uctx, cancel = context.WithTimeout(ctx, r.app.Cfg.UploadTimeout)
				defer cancel()
			}
			if err := r.app.Uploader.Upload(uctx, token.Value, pdfPath, remotePath); err == nil {
				return models.FileStoredRemote, ""
			} else {
				log.Warn().Err(err).Msg("upload failed, falling back to inline delivery")
			}
		}
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Warn().Err(err).Msg("read artifact failed, falling back to text-only delivery")
		return "", ""
	}
	return "", base64.StdEncoding.EncodeToString(data)
}

// studentContext fetches and decrypts the subject and level for prompt
// composition. A missing student yields absent fields, not an error.
func (r *Router) studentContext(ctx context.Context, studentID int64, log zerolog.Logger) (crypto.Field, crypto.Field, error) {
	student, err := r.app.Store.GetStudent(ctx, studentID)
	if err != nil {
		return crypto.Field{}, crypto.Field{}, err
	}
	if student == nil {
		return crypto.Field{}, crypto.Field{}, nil
	}
	subject := r.decryptField(student.SubjectEnc, "subject", log)
	level := r.decryptField(student.LevelEnc, "level", log)
	return subject, level, nil
}

// decryptField decrypts an optional stored field, logging the unreadable
// case so "field unknown" is observable apart from "field empty".
func (r *Router) decryptField(encoded, name string, log zerolog.Logger) crypto.Field {
	field := r.app.Codec.DecryptField(encoded)
	if field.State == crypto.FieldFailed {
		log.Warn().Str("field", name).Msg("field decryption failed, treating as unknown")
	}
	return field
}

func (r *Router) modelFor(user *storage.User) string {
	plan := "free"
	if user != nil {
		plan = user.Plan
	}
	return r.app.Cfg.ModelFor(plan)
}

// tasksSummary builds the numbered quick-view list of tasks, omitting
// solutions.
func tasksSummary(parts []string) string {
	var b strings.Builder
	for i := 0; i < len(parts); i += 2 {
		task := strings.TrimSpace(parts[i])
		if task == "" {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i/2+1, task)
	}
	return b.String()
}
