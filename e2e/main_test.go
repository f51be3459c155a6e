package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/api/handler"
	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/api/router"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/config"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-event-ticketing/internal/notification"
	"github.com/sanosuguru/go-event-ticketing/internal/worker"
)

var (
	testServer *TestServer
	testDB     *sqlx.DB
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo *echo.Echo
}

// user はリクエストを送る利用者
type user struct {
	ID   string
	Role middleware.Role
}

var (
	organizerA = user{ID: "e2e-org-a", Role: middleware.RoleOrganizer}
	organizerB = user{ID: "e2e-org-b", Role: middleware.RoleOrganizer}
	attendeeA  = user{ID: "e2e-user-yamada", Role: middleware.RoleAttendee}
	attendeeB  = user{ID: "e2e-user-suzuki", Role: middleware.RoleAttendee}
	adminUser  = user{ID: "e2e-admin", Role: middleware.RoleAdmin}
)

// TestMain はE2Eテストのエントリポイント
// パッケージ全体で1回だけサーバーを組み立てる
func TestMain(m *testing.M) {
	cfg, err := config.Load("")
	if err != nil {
		os.Exit(0)
	}

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		os.Exit(0) // DB未起動時はスキップ
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	err = postgres.Ping(ctx, db)
	cancel()
	if err != nil {
		db.Close()
		os.Exit(0)
	}
	if err := postgres.RunMigrations(db.DB, "../migrations"); err != nil {
		db.Close()
		os.Exit(0)
	}
	testDB = db

	encoder, err := credential.NewEncoder([]byte("e2e-credential-secret-0123456789abcdef"))
	if err != nil {
		db.Close()
		os.Exit(1)
	}

	dispatcher := worker.NewNotificationDispatcher(notification.NewLogPublisher(zap.NewNop()), worker.DispatcherConfig{})
	dispatcher.Start(context.Background())

	eventRepo := postgres.NewEventRepository(db)
	ticketRepo := postgres.NewTicketRepository(db)
	txManager := postgres.NewTxManager(db)

	inventory := application.NewInventoryService(eventRepo, nil, 0)
	eventService := application.NewEventService(eventRepo, inventory)
	issuance := application.NewIssuanceService(txManager, eventRepo, ticketRepo, encoder, inventory, nil, dispatcher, time.UTC)
	ticketService := application.NewTicketService(txManager, eventRepo, ticketRepo, inventory)
	checkIn := application.NewCheckInService(txManager, eventRepo, ticketRepo, encoder, time.UTC)

	e := router.New(router.Handlers{
		Event:   handler.NewEventHandler(eventService, inventory),
		Ticket:  handler.NewTicketHandler(issuance, ticketService),
		CheckIn: handler.NewCheckInHandler(checkIn),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
		}),
	}, router.Options{HideBanner: true})

	testServer = &TestServer{Echo: e}

	code := m.Run()

	cleanupTables()
	dispatcher.Stop()
	db.Close()

	os.Exit(code)
}

// cleanupTables はテーブルをクリーンアップ
func cleanupTables() {
	testDB.Exec("TRUNCATE TABLE tickets, events CASCADE")
}

// getTestServer は共有サーバーを取得（テスト前にテーブルをクリーンアップ）
func getTestServer(t *testing.T) *TestServer {
	t.Helper()
	if testServer == nil {
		t.Skip("テスト環境が利用できません")
	}
	cleanupTables()
	return testServer
}

// Request はHTTPリクエストを実行する。as がゼロ値なら未認証で送る。
func (s *TestServer) Request(method, path string, body interface{}, as user) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if as.ID != "" {
		req.Header.Set(middleware.HeaderUserID, as.ID)
		req.Header.Set(middleware.HeaderUserRole, string(as.Role))
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}
