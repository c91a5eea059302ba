package workflow

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"slidewright/internal/ledger"
	"slidewright/internal/services"
	"slidewright/internal/store"
)

// pipelineStage describes how one task type moves a document.
type pipelineStage struct {
	taskType   ledger.Type
	requires   store.DocumentStatus
	processing store.DocumentStatus
	done       store.DocumentStatus
	artifact   store.ArtifactKind
	// fallback is the failure kind recorded when an executor returns an
	// error outside the taxonomy.
	fallback services.Kind
}

var pipeline = map[ledger.Type]pipelineStage{
	ledger.TypeExtract: {
		taskType:   ledger.TypeExtract,
		requires:   store.StatusUploaded,
		processing: store.StatusExtracting,
		done:       store.StatusExtracted,
		artifact:   store.ArtifactExtraction,
		fallback:   services.KindCorruptInput,
	},
	ledger.TypeAnalyze: {
		taskType:   ledger.TypeAnalyze,
		requires:   store.StatusExtracted,
		processing: store.StatusAnalyzing,
		done:       store.StatusAnalyzed,
		artifact:   store.ArtifactAnalysis,
		fallback:   services.KindExternalService,
	},
	ledger.TypeRender: {
		taskType:   ledger.TypeRender,
		requires:   store.StatusAnalyzed,
		processing: store.StatusRendering,
		done:       store.StatusCompleted,
		artifact:   store.ArtifactSlides,
		fallback:   services.KindRender,
	},
}

// statusRank orders the statuses a document can be resumed from.
var statusRank = map[store.DocumentStatus]int{
	store.StatusUploaded:  0,
	store.StatusExtracted: 1,
	store.StatusAnalyzed:  2,
	store.StatusCompleted: 3,
}

// admissible reports whether doc satisfies the stage's precondition. A
// healthy document must sit exactly at the required status, or already be in
// this stage so that a duplicate request is reported as already in progress.
// A document in error may re-run any stage whose inputs it already has,
// which includes the stage that failed and every earlier one.
//
// A completed document admits nothing, render included. Re-rendering would
// move its status back from completed to rendering, and status never
// regresses outside the error path. The cost is that a second deck for the
// same paper needs a fresh upload; every earlier deck stays downloadable.
func (p pipelineStage) admissible(doc *store.Document) bool {
	if doc.Status != store.StatusError {
		return doc.Status == p.requires || doc.Status == p.processing
	}
	resume, ok := statusRank[doc.EffectiveStatus()]
	if !ok {
		resume = 0
	}
	return resume >= statusRank[p.requires]
}

// failureKind maps err onto the task failure taxonomy for this stage.
func (p pipelineStage) failureKind(err error) services.Kind {
	switch kind := services.KindOf(err); kind {
	case services.KindUnknown, services.KindValidation, services.KindNotFound:
		return p.fallback
	default:
		return kind
	}
}

// StageLabel renders a document status for humans, e.g. "Analyzing".
func StageLabel(status store.DocumentStatus) string {
	if status == "" {
		return ""
	}
	return cases.Title(language.English).String(string(status))
}
