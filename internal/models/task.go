package models

// TaskKind identifies the unit of work carried by a task envelope.
type TaskKind string

const (
	TaskGeneratePlan  TaskKind = "generate_plan"
	TaskGenerateTasks TaskKind = "generate_tasks"
	TaskCheckHomework TaskKind = "check_homework"
	TaskChat          TaskKind = "chat"
	TaskEndChat       TaskKind = "end_chat"
)

// TaskEnvelope is the unit of work published to the task queue. The wire
// format is UTF-8 JSON; kind-specific fields are omitted when empty.
type TaskEnvelope struct {
	Kind      TaskKind `json:"type"`
	TaskID    string   `json:"task_id,omitempty"`
	UserID    int64    `json:"user_id"`
	StudentID int64    `json:"student_id,omitempty"`

	// generate_plan / generate_tasks
	Description string `json:"description,omitempty"`

	// check_homework
	SolutionText string `json:"solution_text,omitempty"`
	Filename     string `json:"filename,omitempty"`

	// chat
	Message string `json:"message,omitempty"`
}

// Billable reports whether processing this task consumes quota.
func (t *TaskEnvelope) Billable() bool {
	switch t.Kind {
	case TaskGeneratePlan, TaskGenerateTasks, TaskCheckHomework:
		return true
	}
	return false
}
