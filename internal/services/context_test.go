package services_test

import (
	"context"
	"testing"

	"slidewright/internal/services"
)

func TestContextCarriesPipelineIdentifiers(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithStage(
			services.WithTaskID(
				services.WithDocumentID(context.Background(), "doc-1"),
				"task-9"),
			"render"),
		"req-123")

	checks := []struct {
		name string
		get  func(context.Context) (string, bool)
		want string
	}{
		{"document", services.DocumentIDFromContext, "doc-1"},
		{"task", services.TaskIDFromContext, "task-9"},
		{"stage", services.StageFromContext, "render"},
		{"request", services.RequestIDFromContext, "req-123"},
	}
	for _, c := range checks {
		if got, ok := c.get(ctx); !ok || got != c.want {
			t.Errorf("%s: got %q (%v), want %q", c.name, got, ok, c.want)
		}
	}
}

func TestBlankIdentifiersAreNotStored(t *testing.T) {
	ctx := services.WithTaskID(services.WithDocumentID(context.Background(), ""), "")
	if _, ok := services.DocumentIDFromContext(ctx); ok {
		t.Fatal("blank document id stored")
	}
	if _, ok := services.TaskIDFromContext(ctx); ok {
		t.Fatal("blank task id stored")
	}
	if _, ok := services.StageFromContext(context.Background()); ok {
		t.Fatal("stage reported on empty context")
	}
}
