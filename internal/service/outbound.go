package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fieldtrack/services/ledger/internal/messaging"
	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/search"
)

// OutboundService delivers recorded execution events to the reporting
// index and the ERP integration queue. Delivery is at-least-once: an event
// is only marked published after every configured sink accepted it.
type OutboundService interface {
	PublishPending(ctx context.Context, limit int) (int, error)
}

// outboundService implements OutboundService
type outboundService struct {
	execRepo repository.ExecutionRepository
	elastic  *search.ElasticClient
	bus      messaging.ServiceBusClient
}

// NewOutboundService creates a new outbound service. Either sink may be
// nil when not configured.
func NewOutboundService(
	execRepo repository.ExecutionRepository,
	elastic *search.ElasticClient,
	bus messaging.ServiceBusClient,
) OutboundService {
	return &outboundService{
		execRepo: execRepo,
		elastic:  elastic,
		bus:      bus,
	}
}

// executionMessage is the wire shape sent to the ERP queue
type executionMessage struct {
	EventID     uuid.UUID                       `json:"event_id"`
	PlanID      uuid.UUID                       `json:"plan_id"`
	WorkDate    string                          `json:"work_date"`
	BlockDeltas []models.ExecutionBlockDelta    `json:"block_deltas"`
	Materials   []models.ExecutionMaterialUsage `json:"materials"`
}

// PublishPending delivers up to limit unpublished events and marks the
// delivered ones. A failed event is skipped and retried on the next run.
func (s *outboundService) PublishPending(ctx context.Context, limit int) (int, error) {
	events, err := s.execRepo.FindUnpublished(ctx, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load unpublished events")
	}
	if len(events) == 0 {
		return 0, nil
	}

	var delivered []uuid.UUID
	for _, event := range events {
		if s.elastic != nil {
			if err := s.elastic.IndexExecutionEvent(ctx, event); err != nil {
				log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to index execution event")
				continue
			}
		}

		if s.bus != nil {
			msg := executionMessage{
				EventID:     event.ID,
				PlanID:      event.PlanID,
				WorkDate:    event.WorkDate.Format("2006-01-02"),
				BlockDeltas: event.BlockDeltas,
				Materials:   event.MaterialUsages,
			}
			if err := s.bus.SendMessage(ctx, msg); err != nil {
				log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to publish execution event")
				continue
			}
		}

		delivered = append(delivered, event.ID)
	}

	if err := s.execRepo.MarkAsPublished(ctx, delivered); err != nil {
		return 0, errors.Wrap(err, "failed to mark events as published")
	}

	if len(delivered) > 0 {
		log.Info().Int("count", len(delivered)).Msg("Execution events published")
	}
	return len(delivered), nil
}
