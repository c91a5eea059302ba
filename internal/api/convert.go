package api

import (
	"sort"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/render"
	"slidewright/internal/store"
	"slidewright/internal/workflow"
)

// FromDocument converts a stored document into its API view.
func FromDocument(doc *store.Document) Document {
	if doc == nil {
		return Document{}
	}
	return Document{
		ID:               doc.ID,
		Filename:         doc.Filename,
		Title:            doc.Title,
		ProcessingStatus: string(doc.Status),
		StatusLabel:      workflow.StageLabel(doc.Status),
		ResumeStatus:     string(doc.ResumeStatus),
		ErrorMessage:     doc.ErrorMessage,
		ExtractionID:     doc.ExtractionID,
		Metadata: DocumentMetadata{
			Author:    doc.Metadata.Author,
			Subject:   doc.Metadata.Subject,
			Keywords:  doc.Metadata.Keywords,
			PageCount: doc.Metadata.PageCount,
		},
		CreatedAt: formatTime(doc.CreatedAt),
		UpdatedAt: formatTime(doc.UpdatedAt),
	}
}

// FromDocuments converts a slice of documents, preserving order.
func FromDocuments(docs []*store.Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		out = append(out, FromDocument(doc))
	}
	return out
}

// FromTask converts a ledger task into its API view.
func FromTask(task *ledger.Task) Task {
	if task == nil {
		return Task{}
	}
	view := Task{
		ID:           task.ID,
		DocumentID:   task.DocumentID,
		Type:         string(task.Type),
		Status:       string(task.Status),
		Progress:     task.Progress,
		ResultID:     task.ResultID,
		ErrorKind:    task.ErrorKind,
		ErrorMessage: task.ErrorMessage,
		Attempts:     task.Attempts,
		CreatedAt:    formatTime(task.CreatedAt),
		UpdatedAt:    formatTime(task.UpdatedAt),
	}
	if task.CompletedAt != nil {
		view.CompletedAt = formatTime(*task.CompletedAt)
	}
	return view
}

// FromTasks converts a slice of tasks, preserving order.
func FromTasks(tasks []*ledger.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task == nil {
			continue
		}
		out = append(out, FromTask(task))
	}
	return out
}

// FromArtifact converts a stored artifact into its API view.
func FromArtifact(artifact *store.Artifact) Artifact {
	if artifact == nil {
		return Artifact{}
	}
	return Artifact{
		ID:         artifact.ID,
		DocumentID: artifact.DocumentID,
		TaskID:     artifact.TaskID,
		Kind:       string(artifact.Kind),
		CreatedAt:  formatTime(artifact.CreatedAt),
		Extraction: artifact.Extraction,
		Analysis:   artifact.Analysis,
		Slides:     artifact.Slides,
	}
}

// FromStatusSummary converts the scheduler summary into its API view.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		Active:      summary.Active,
		Capacity:    summary.Capacity,
		Tasks:       make([]RunningTask, 0, len(summary.Tasks)),
		Documents:   make(map[string]int, len(summary.Documents)),
		StageHealth: StageHealthSlice(summary),
		LastError:   summary.LastError,
	}
	for _, task := range summary.Tasks {
		status.Tasks = append(status.Tasks, RunningTask{
			TaskID:     task.TaskID,
			DocumentID: task.DocumentID,
			Type:       string(task.Type),
			Progress:   task.Progress,
			Attempt:    task.Attempt,
			StartedAt:  formatTime(task.StartedAt),
		})
	}
	for docStatus, count := range summary.Documents {
		status.Documents[string(docStatus)] = count
	}
	return status
}

// StageHealthSlice orders stage health by pipeline position.
func StageHealthSlice(summary workflow.StatusSummary) []StageHealth {
	out := make([]StageHealth, 0, len(summary.StageHealth))
	for name, health := range summary.StageHealth {
		out = append(out, StageHealth{Name: name, Ready: health.Ready, Detail: health.Detail})
	}
	position := func(name string) int {
		for i, t := range ledger.Types {
			if string(t) == name {
				return i
			}
		}
		return len(ledger.Types)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := position(out[i].Name), position(out[j].Name)
		if pi != pj {
			return pi < pj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FromTemplate converts a catalog template into its API view.
func FromTemplate(tpl render.Template) Template {
	return Template{
		Name:        tpl.Name,
		Description: tpl.Description,
		TitleFont:   tpl.TitleFont,
		BodyFont:    tpl.BodyFont,
		TitleSize:   tpl.TitleSize,
		BodySize:    tpl.BodySize,
		Builtin:     tpl.Builtin,
		Colors: map[string]string{
			"titleBackground": "#" + tpl.Colors.TitleBackground.Hex(),
			"titleText":       "#" + tpl.Colors.TitleText.Hex(),
			"background":      "#" + tpl.Colors.Background.Hex(),
			"text":            "#" + tpl.Colors.Text.Hex(),
			"accent1":         "#" + tpl.Colors.Accent1.Hex(),
			"accent2":         "#" + tpl.Colors.Accent2.Hex(),
		},
	}
}

// FromTemplates converts a catalog listing.
func FromTemplates(templates []render.Template) []Template {
	out := make([]Template, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, FromTemplate(tpl))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp. It returns the zero time for empty or
// malformed values.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
