package models

// ResultKind identifies the payload carried by a result envelope.
type ResultKind string

const (
	ResultPlan          ResultKind = "plan"
	ResultTasks         ResultKind = "tasks"
	ResultCheck         ResultKind = "check"
	ResultChat          ResultKind = "chat"
	ResultError         ResultKind = "error"
	ResultQuotaExceeded ResultKind = "quota_exceeded"
)

// FileStoredRemote is the file_url sentinel meaning the artifact was uploaded
// to the user's remote storage and the recipient resolves the reference.
const FileStoredRemote = "remote"

// ResultEnvelope is published to the result queue, exactly one per consumed
// task (none for end_chat). FileURL holds FileStoredRemote or a fetchable
// URL; when it is empty the artifact, if any, travels inline in File as
// base64 bytes.
type ResultEnvelope struct {
	Kind      ResultKind `json:"type"`
	TaskID    string     `json:"task_id,omitempty"`
	UserID    int64      `json:"user_id"`
	StudentID int64      `json:"student_id,omitempty"`

	PlanText   string `json:"plan_text,omitempty"`
	TasksText  string `json:"tasks_text,omitempty"`
	ReportText string `json:"report_text,omitempty"`
	Answer     string `json:"answer,omitempty"`
	ErrorText  string `json:"message,omitempty"`

	FileURL string `json:"file_url,omitempty"`
	File    string `json:"file,omitempty"`
}

// Text returns the primary user-facing text of the result.
func (r *ResultEnvelope) Text() string {
	switch r.Kind {
	case ResultPlan:
		return r.PlanText
	case ResultTasks:
		return r.TasksText
	case ResultCheck:
		return r.ReportText
	case ResultChat:
		return r.Answer
	}
	return r.ErrorText
}
