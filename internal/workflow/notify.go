package workflow

import (
	"context"
	"errors"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/notifications"
	"slidewright/internal/services"
	"slidewright/internal/store"
)

func (s *Scheduler) notifyCompletion(ctx context.Context, r *run, doc *store.Document, artifact *store.Artifact) {
	s.publish(ctx, notifications.EventStageCompleted, notifications.Payload{
		"title":       doc.Title,
		"stage":       string(r.def.taskType),
		"document_id": doc.ID,
	})
	if r.def.taskType != ledger.TypeRender || artifact.Slides == nil {
		return
	}
	s.publish(ctx, notifications.EventDocumentCompleted, notifications.Payload{
		"title":       doc.Title,
		"document_id": doc.ID,
		"slides":      artifact.Slides.SlideCount,
		"path":        artifact.Slides.Path,
	})
}

func (s *Scheduler) notifyFailure(ctx context.Context, def pipelineStage, doc *store.Document, kind services.Kind, summary string) {
	payload := notifications.Payload{
		"stage": string(def.taskType),
		"kind":  string(kind),
		"error": summary,
	}
	if doc != nil {
		payload["title"] = doc.Title
		payload["document_id"] = doc.ID
	}
	s.publish(ctx, notifications.EventStageFailed, payload)
}

func (s *Scheduler) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		s.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
