package api_test

import (
	"testing"

	"slidewright/internal/api"
	"slidewright/internal/render"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/workflow"
)

func TestStageHealthSliceFollowsPipelineOrder(t *testing.T) {
	summary := workflow.StatusSummary{
		StageHealth: map[string]stage.Health{
			"render":  stage.Healthy("render"),
			"extract": stage.Healthy("extract"),
			"analyze": stage.Unhealthy("analyze", "llm api key missing"),
		},
	}
	got := api.StageHealthSlice(summary)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, name := range []string{"extract", "analyze", "render"} {
		if got[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
	if got[1].Ready || got[1].Detail == "" {
		t.Fatalf("expected analyze to carry its failure detail: %+v", got[1])
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:   true,
		Active:    1,
		Capacity:  5,
		Tasks:     []workflow.RunningTask{{TaskID: "t1", DocumentID: "d1", Type: "extract", Progress: 30, Attempt: 1}},
		Documents: map[store.DocumentStatus]int{store.StatusExtracting: 1},
		LastError: "boom",
	}
	got := api.FromStatusSummary(summary)
	if !got.Running || got.Active != 1 || got.Capacity != 5 || got.LastError != "boom" {
		t.Fatalf("unexpected status %+v", got)
	}
	if got.Documents["extracting"] != 1 {
		t.Fatalf("unexpected document counts %+v", got.Documents)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Type != "extract" || got.Tasks[0].StartedAt != "" {
		t.Fatalf("unexpected tasks %+v", got.Tasks)
	}
}

func TestFromTemplateRendersHexColors(t *testing.T) {
	tpl := render.Template{
		Name:      "corporate",
		TitleFont: "Arial",
		BodyFont:  "Arial",
		Colors: render.Palette{
			TitleBackground: render.RGB(0x1F, 0x49, 0x7D),
			Text:            render.RGB(0, 0, 0),
		},
		Builtin: true,
	}
	got := api.FromTemplate(tpl)
	if got.Colors["titleBackground"] != "#1F497D" {
		t.Fatalf("unexpected title background %q", got.Colors["titleBackground"])
	}
	if got.Colors["text"] != "#000000" || !got.Builtin {
		t.Fatalf("unexpected template view %+v", got)
	}
}
