package application

import (
	"context"
	"time"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/notification"
)

// CredentialMinter はチケットの認証コードを発行する
type CredentialMinter interface {
	Mint(ticketID, eventID, userID string) (credential.Credential, error)
}

// CredentialVerifier は認証コードを検証してチケットIDを返す
type CredentialVerifier interface {
	Verify(code string) (string, error)
}

// AvailabilityCache は残り枚数のキャッシュ
type AvailabilityCache interface {
	Get(ctx context.Context, eventID string) (int, error)
	Set(ctx context.Context, eventID string, available int, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID string) error
}

// NotificationQueue は購入通知を非同期送信の待ち行列に積む。ブロックしてはならない。
type NotificationQueue interface {
	Enqueue(n notification.PurchaseNotification) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
