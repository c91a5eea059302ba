package api

import "slidewright/internal/store"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Document describes an uploaded paper and its aggregate pipeline status.
type Document struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename"`
	Title            string           `json:"title"`
	ProcessingStatus string           `json:"processingStatus"`
	StatusLabel      string           `json:"statusLabel"`
	ResumeStatus     string           `json:"resumeStatus,omitempty"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	ExtractionID     string           `json:"extractionId,omitempty"`
	Metadata         DocumentMetadata `json:"metadata"`
	CreatedAt        string           `json:"createdAt,omitempty"`
	UpdatedAt        string           `json:"updatedAt,omitempty"`
}

// DocumentMetadata carries the PDF properties discovered during extraction.
type DocumentMetadata struct {
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
}

// Task is the polling view of one stage execution.
type Task struct {
	ID           string `json:"id"`
	DocumentID   string `json:"documentId"`
	Type         string `json:"taskType"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultID     string `json:"resultId,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// Artifact is a completed stage output. Exactly one payload is set.
type Artifact struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	TaskID     string            `json:"taskId"`
	Kind       string            `json:"kind"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	Extraction *store.Extraction `json:"extraction,omitempty"`
	Analysis   *store.Analysis   `json:"analysis,omitempty"`
	Slides     *store.Slides     `json:"slides,omitempty"`
}

// RunningTask describes a task currently holding a scheduler slot.
type RunningTask struct {
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
	Type       string `json:"taskType"`
	Progress   int    `json:"progress"`
	Attempt    int    `json:"attempt"`
	StartedAt  string `json:"startedAt,omitempty"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Active      int            `json:"active"`
	Capacity    int            `json:"capacity"`
	Tasks       []RunningTask  `json:"tasks"`
	Documents   map[string]int `json:"documents"`
	StageHealth []StageHealth  `json:"stageHealth"`
	LastError   string         `json:"lastError,omitempty"`
}

// StageHealth mirrors readiness reporting for stage executors.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	OutputDir    string         `json:"outputDir"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// Template describes a slide theme available to the render stage.
type Template struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	TitleFont   string            `json:"titleFont"`
	BodyFont    string            `json:"bodyFont"`
	TitleSize   int               `json:"titleSize"`
	BodySize    int               `json:"bodySize"`
	Colors      map[string]string `json:"colors"`
	Builtin     bool              `json:"builtin"`
}

// DocumentListResponse wraps a collection of documents.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TemplateListResponse wraps the template catalog.
type TemplateListResponse struct {
	Templates []Template `json:"templates"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
