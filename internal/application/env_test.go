package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
)

var jst = time.FixedZone("JST", 9*60*60)

// testEnv はインメモリストア上に全サービスを組み立てたテスト環境
type testEnv struct {
	store     *memStore
	encoder   *credential.Encoder
	inventory *InventoryService
	events    *EventService
	issuance  *IssuanceService
	checkIn   *CheckInService
	tickets   *TicketService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	enc, err := credential.NewEncoder([]byte("test-secret-0123456789"))
	require.NoError(t, err)

	er, tr := store.eventRepo(), store.ticketRepo()
	inventory := NewInventoryService(er, nil, 0)
	return &testEnv{
		store:     store,
		encoder:   enc,
		inventory: inventory,
		events:    NewEventService(er, inventory),
		issuance:  NewIssuanceService(store, er, tr, enc, inventory, nil, nil, jst),
		checkIn:   NewCheckInService(store, er, tr, enc, jst),
		tickets:   NewTicketService(store, er, tr, inventory),
	}
}

// seedEvent は公開済みのイベントをストアに直接登録する
func (e *testEnv) seedEvent(capacity int, startAt time.Time) *event.Event {
	ev := &event.Event{
		OrganizerID: "org-1",
		Title:       "テストライブ",
		Venue:       "テストホール",
		StartAt:     startAt,
		EndAt:       startAt.Add(3 * time.Hour),
		Capacity:    capacity,
		Price:       decimal.RequireFromString("5000.00"),
		Status:      event.StatusPublished,
		Version:     1,
	}
	e.store.putEvent(ev)
	return ev
}
