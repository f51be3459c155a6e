package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-ticketing/internal/notification"
)

// MockEventRepository はevent.Repositoryのモック
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, e *event.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepository) List(ctx context.Context, filter event.ListFilter) ([]*event.Event, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventRepository) Update(ctx context.Context, e *event.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventRepository) ReserveCapacity(ctx context.Context, tx transaction.Tx, eventID string, quantity int) (int, error) {
	args := m.Called(ctx, tx, eventID, quantity)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) RecountSold(ctx context.Context, tx transaction.Tx, eventID string) (int, error) {
	args := m.Called(ctx, tx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) ReconcileSold(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockAvailabilityCache はAvailabilityCacheのモック
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) Get(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) Set(ctx context.Context, eventID string, available int, ttl time.Duration) error {
	args := m.Called(ctx, eventID, available, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockNotificationQueue はNotificationQueueのモック
type MockNotificationQueue struct {
	mock.Mock
}

func (m *MockNotificationQueue) Enqueue(n notification.PurchaseNotification) error {
	args := m.Called(n)
	return args.Error(0)
}

// MockLocker はredisinfra.Lockerのモック
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl, maxRetries, retryDelay)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

// MockLock はredisinfra.Lockのモック
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLock) Extend(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

// stubMinter は決まった認証コードを順に返し、尽きたら本物の Encoder に委ねる
type stubMinter struct {
	codes []string
	next  CredentialMinter
	calls int
}

func (m *stubMinter) Mint(ticketID, eventID, userID string) (credential.Credential, error) {
	m.calls++
	if len(m.codes) > 0 {
		code := m.codes[0]
		m.codes = m.codes[1:]
		return credential.Credential{Code: code}, nil
	}
	return m.next.Mint(ticketID, eventID, userID)
}
