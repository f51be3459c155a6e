package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
)

type EventService struct {
	eventRepo event.Repository
	inventory *InventoryService
}

func NewEventService(eventRepo event.Repository, inventory *InventoryService) *EventService {
	return &EventService{eventRepo: eventRepo, inventory: inventory}
}

type CreateEventInput struct {
	OrganizerID string
	Title       string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	Price       decimal.Decimal
}

func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	e := event.NewEvent(input.OrganizerID, input.Title, input.Description, input.Venue, input.StartAt, input.EndAt, input.Capacity, input.Price)
	if err := e.Validate(); err != nil {
		return nil, classify(err)
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		return nil, classify(err)
	}
	logger.FromContext(ctx).Info("イベントを作成しました", zap.String("event_id", e.ID), zap.String("organizer_id", e.OrganizerID))
	return e, nil
}

// GetEvent はイベントを取得する。下書きは主催者本人以外には存在しない扱い。
func (s *EventService) GetEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if e.Status == event.StatusDraft && !e.IsOwnedBy(requesterID) {
		return nil, classify(event.ErrEventNotFound)
	}
	return e, nil
}

func (s *EventService) ListPublishedEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	limit, offset = normalizePage(limit, offset)
	events, err := s.eventRepo.List(ctx, event.ListFilter{Status: event.StatusPublished, Limit: limit, Offset: offset})
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *EventService) ListOrganizerEvents(ctx context.Context, organizerID string, limit, offset int) ([]*event.Event, error) {
	limit, offset = normalizePage(limit, offset)
	events, err := s.eventRepo.List(ctx, event.ListFilter{OrganizerID: organizerID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

type UpdateEventInput struct {
	ID          string
	RequesterID string
	Title       string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	Price       decimal.Decimal
}

// UpdateEvent はイベントを更新する。販売済みの場合は日時・会場・定員を変更できない。
func (s *EventService) UpdateEvent(ctx context.Context, input UpdateEventInput) (*event.Event, error) {
	e, err := s.ownedEvent(ctx, input.ID, input.RequesterID)
	if err != nil {
		return nil, err
	}
	err = e.ApplyChanges(event.Changes{
		Title:       input.Title,
		Description: input.Description,
		Venue:       input.Venue,
		StartAt:     input.StartAt,
		EndAt:       input.EndAt,
		Capacity:    input.Capacity,
		Price:       input.Price,
	})
	if err != nil {
		return nil, classify(err)
	}
	if err := s.eventRepo.Update(ctx, e); err != nil {
		return nil, classify(err)
	}
	s.inventory.Invalidate(ctx, e.ID)
	return e, nil
}

// DeleteEvent はイベントを削除する。販売済みのイベントは削除できない。
func (s *EventService) DeleteEvent(ctx context.Context, id, requesterID string) error {
	e, err := s.ownedEvent(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if e.HasSales() {
		return classify(event.ErrEventHasSales)
	}
	if err := s.eventRepo.Delete(ctx, id); err != nil {
		return classify(err)
	}
	s.inventory.Invalidate(ctx, id)
	return nil
}

func (s *EventService) PublishEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	return s.transition(ctx, id, requesterID, (*event.Event).Publish)
}

// CancelEvent は公開中のイベントを中止する。発行済みチケットの返金は別途行う。
func (s *EventService) CancelEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	return s.transition(ctx, id, requesterID, (*event.Event).Cancel)
}

func (s *EventService) transition(ctx context.Context, id, requesterID string, apply func(*event.Event) error) (*event.Event, error) {
	e, err := s.ownedEvent(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if err := apply(e); err != nil {
		return nil, classify(err)
	}
	if err := s.eventRepo.Update(ctx, e); err != nil {
		return nil, classify(err)
	}
	s.inventory.Invalidate(ctx, e.ID)
	logger.FromContext(ctx).Info("イベントの状態を変更しました", zap.String("event_id", e.ID), zap.String("status", string(e.Status)))
	return e, nil
}

// ownedEvent は主催者本人のイベントを取得する
func (s *EventService) ownedEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if !e.IsOwnedBy(requesterID) {
		if e.Status == event.StatusDraft {
			return nil, classify(event.ErrEventNotFound)
		}
		return nil, classify(ErrForbidden)
	}
	return e, nil
}
