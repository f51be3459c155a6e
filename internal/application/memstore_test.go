package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

var errInjectedFault = errors.New("ストレージ障害（テスト用）")

// memStore はテスト用のトランザクション付きインメモリストア。
// トランザクションは txMu で直列化し、Rollback で開始時点の状態に戻す。
// トランザクション内ではトランザクションを受け取るメソッドだけを呼ぶこと。
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	events  map[string]event.Event
	tickets map[string]ticket.Snapshot
	order   []string

	// failCreateAt 回目のチケット作成を失敗させる（0なら失敗させない）
	failCreateAt int
	creates      int

	calls atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{
		events:  make(map[string]event.Event),
		tickets: make(map[string]ticket.Snapshot),
	}
}

func (s *memStore) eventRepo() *memEventRepo   { return &memEventRepo{s} }
func (s *memStore) ticketRepo() *memTicketRepo { return &memTicketRepo{s} }

// storageCalls はリポジトリとトランザクションの呼び出し回数
func (s *memStore) storageCalls() int64 { return s.calls.Load() }

func (s *memStore) putEvent(e *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.events[e.ID] = *e
}

func (s *memStore) putTicket(t *ticket.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeTicket(t)
}

func (s *memStore) storeTicket(t *ticket.Ticket) {
	if _, ok := s.tickets[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tickets[t.ID] = ticket.Snapshot{
		ID:                t.ID,
		EventID:           t.EventID,
		UserID:            t.UserID,
		Price:             t.Price,
		Credential:        t.Credential,
		Status:            t.Status(),
		CheckInTime:       t.CheckInTime(),
		PurchaseReference: t.PurchaseReference,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func (s *memStore) activeCount(eventID string) int {
	n := 0
	for _, snap := range s.tickets {
		if snap.EventID == eventID && snap.Status.IsActive() {
			n++
		}
	}
	return n
}

// sold は保存済みの販売枚数
func (s *memStore) sold(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID].TicketsSold
}

// ticketsOf は保存済みのチケットを作成順に返す
func (s *memStore) ticketsOf(eventID, userID string) []*ticket.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ticket.Ticket
	for _, id := range s.order {
		snap := s.tickets[id]
		if (eventID == "" || snap.EventID == eventID) && (userID == "" || snap.UserID == userID) {
			out = append(out, ticket.Rehydrate(snap))
		}
	}
	return out
}

// --- transaction.Manager ---

type memTx struct {
	s       *memStore
	events  map[string]event.Event
	tickets map[string]ticket.Snapshot
	order   []string
	done    bool
}

func (s *memStore) Begin(ctx context.Context) (transaction.Tx, error) {
	s.calls.Add(1)
	s.txMu.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		s:       s,
		events:  make(map[string]event.Event, len(s.events)),
		tickets: make(map[string]ticket.Snapshot, len(s.tickets)),
		order:   append([]string(nil), s.order...),
	}
	for k, v := range s.events {
		tx.events[k] = v
	}
	for k, v := range s.tickets {
		tx.tickets[k] = v
	}
	return tx, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return errors.New("トランザクションは終了しています")
	}
	tx.done = true
	tx.s.txMu.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.s.mu.Lock()
	tx.s.events = tx.events
	tx.s.tickets = tx.tickets
	tx.s.order = tx.order
	tx.s.mu.Unlock()
	tx.s.txMu.Unlock()
	return nil
}

func requireTx(tx transaction.Tx) error {
	if mt, ok := tx.(*memTx); !ok || mt.done {
		return errors.New("トランザクションが必要です")
	}
	return nil
}

// --- event.Repository ---

type memEventRepo struct{ s *memStore }

var _ event.Repository = (*memEventRepo)(nil)

func (r *memEventRepo) Create(ctx context.Context, e *event.Event) error {
	r.s.calls.Add(1)
	e.Version = 1
	r.s.putEvent(e)
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id string) (*event.Event, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, event.ErrEventNotFound
	}
	return &e, nil
}

func (r *memEventRepo) List(ctx context.Context, filter event.ListFilter) ([]*event.Event, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*event.Event
	for _, e := range r.s.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.OrganizerID != "" && e.OrganizerID != filter.OrganizerID {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if filter.Offset >= len(out) {
		return []*event.Event{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memEventRepo) Update(ctx context.Context, e *event.Event) error {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.events[e.ID]
	if !ok {
		return event.ErrEventNotFound
	}
	if stored.Version != e.Version {
		return event.ErrOptimisticLockConflict
	}
	next := *e
	next.TicketsSold = stored.TicketsSold
	next.Version++
	r.s.events[e.ID] = next
	e.Version = next.Version
	return nil
}

func (r *memEventRepo) Delete(ctx context.Context, id string) error {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return event.ErrEventNotFound
	}
	if e.TicketsSold > 0 {
		return event.ErrEventHasSales
	}
	delete(r.s.events, id)
	return nil
}

func (r *memEventRepo) ReserveCapacity(ctx context.Context, tx transaction.Tx, eventID string, quantity int) (int, error) {
	r.s.calls.Add(1)
	if err := requireTx(tx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return 0, event.ErrEventNotFound
	}
	if !e.IsOnSale() {
		return 0, event.ErrEventNotOnSale
	}
	if e.TicketsSold+quantity > e.Capacity {
		return 0, &event.CapacityError{Requested: quantity, Available: e.Available()}
	}
	e.TicketsSold += quantity
	e.Version++
	r.s.events[eventID] = e
	return e.TicketsSold, nil
}

func (r *memEventRepo) RecountSold(ctx context.Context, tx transaction.Tx, eventID string) (int, error) {
	r.s.calls.Add(1)
	if err := requireTx(tx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return 0, event.ErrEventNotFound
	}
	e.TicketsSold = r.s.activeCount(eventID)
	e.Version++
	r.s.events[eventID] = e
	return e.TicketsSold, nil
}

func (r *memEventRepo) ReconcileSold(ctx context.Context) (int, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fixed := 0
	for id, e := range r.s.events {
		if n := r.s.activeCount(id); n != e.TicketsSold {
			e.TicketsSold = n
			e.Version++
			r.s.events[id] = e
			fixed++
		}
	}
	return fixed, nil
}

// --- ticket.Repository ---

type memTicketRepo struct{ s *memStore }

var _ ticket.Repository = (*memTicketRepo)(nil)

func (r *memTicketRepo) Create(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	r.s.calls.Add(1)
	if err := requireTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.creates++
	if r.s.failCreateAt > 0 && r.s.creates == r.s.failCreateAt {
		return errInjectedFault
	}
	for _, snap := range r.s.tickets {
		if snap.Credential == t.Credential {
			return ticket.ErrCredentialConflict
		}
	}
	r.s.storeTicket(t)
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.tickets[id]
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	return ticket.Rehydrate(snap), nil
}

func (r *memTicketRepo) GetByCredential(ctx context.Context, code string) (*ticket.Ticket, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, snap := range r.s.tickets {
		if snap.Credential == code {
			return ticket.Rehydrate(snap), nil
		}
	}
	return nil, ticket.ErrTicketNotFound
}

func (r *memTicketRepo) HasActiveHolding(ctx context.Context, tx transaction.Tx, eventID, userID string) (bool, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, snap := range r.s.tickets {
		if snap.EventID == eventID && snap.UserID == userID && snap.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTicketRepo) list(match func(ticket.Snapshot) bool, filter ticket.ListFilter) *ticket.Page {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*ticket.Ticket
	for _, id := range r.s.order {
		snap := r.s.tickets[id]
		if match(snap) && (filter.Status == "" || snap.Status == filter.Status) {
			all = append(all, ticket.Rehydrate(snap))
		}
	}
	page := &ticket.Page{Total: len(all), Tickets: []*ticket.Ticket{}}
	if filter.Offset < len(all) {
		all = all[filter.Offset:]
		if filter.Limit > 0 && filter.Limit < len(all) {
			all = all[:filter.Limit]
		}
		page.Tickets = all
	}
	return page
}

func (r *memTicketRepo) ListByUser(ctx context.Context, userID string, filter ticket.ListFilter) (*ticket.Page, error) {
	r.s.calls.Add(1)
	return r.list(func(s ticket.Snapshot) bool { return s.UserID == userID }, filter), nil
}

func (r *memTicketRepo) ListByEvent(ctx context.Context, eventID string, filter ticket.ListFilter) (*ticket.Page, error) {
	r.s.calls.Add(1)
	return r.list(func(s ticket.Snapshot) bool { return s.EventID == eventID }, filter), nil
}

func (r *memTicketRepo) CountByStatus(ctx context.Context, eventID string) (map[ticket.Status]int, error) {
	r.s.calls.Add(1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[ticket.Status]int)
	for _, snap := range r.s.tickets {
		if snap.EventID == eventID {
			out[snap.Status]++
		}
	}
	return out, nil
}

func (r *memTicketRepo) UpdateStatus(ctx context.Context, tx transaction.Tx, t *ticket.Ticket, from ticket.Status) error {
	r.s.calls.Add(1)
	if err := requireTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.tickets[t.ID]
	if !ok {
		return ticket.ErrTicketNotFound
	}
	if snap.Status != from {
		return ticket.ErrStatusConflict
	}
	r.s.storeTicket(t)
	return nil
}
