package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexa/stylebot/internal/config"
	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/notify"
	"github.com/flexa/stylebot/internal/repository"
	"github.com/flexa/stylebot/internal/service"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{Packages: map[string]models.Package{}}
	events := notify.NopEmitter{}

	userRepo := repository.NewUserRepository(db)
	styleRepo := repository.NewStyleRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	users := service.NewUserService(cfg, log, userRepo, events)
	styles := service.NewStyleService(log, styleRepo)
	ledger := service.NewLedgerService(log, ledgerRepo)
	generations := service.NewGenerationService(log, generationRepo, userRepo, styleRepo, nil, service.NewRetryPolicy(1, 0), events)
	payments := service.NewPaymentService(cfg, log, paymentRepo, userRepo, nil, events)

	isAdmin := func(id int64) bool { return id == 99 }
	srv := NewServer(":0", "ops", "secret", isAdmin, log, users, styles, payments, generations, ledger, statsRepo, nil)
	return srv, mock
}

func TestServer_BasicAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("MissingCredentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.SetBasicAuth("ops", "wrong")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MetricsIsPublic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_Stats(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"total_users", "total_generations", "pending_payments", "manual_queue"}).
			AddRow(42, 130, 2, 1))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.SetBasicAuth("ops", "secret")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "42")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_RejectPaymentConflict(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = ?`)).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "package_type", "amount_birr", "credits_amount", "screenshot_url", "ocr_extracted_data",
			"status", "admin_id", "admin_note", "submitted_at", "reviewed_at",
		}).AddRow("pay-1", 7, "10_images", 150, 10, "", nil, "approved", nil, "", time.Now(), nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = 'rejected'`)).
		WithArgs(int64(99), "late", "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM payments WHERE id = ?`)).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	body := strings.NewReader(`{"admin_id": 99, "reason": "late"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/pay-1/reject", body)
	req.SetBasicAuth("ops", "secret")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_UnknownAdminIDForbidden(t *testing.T) {
	srv, mock := newTestServer(t)

	// Basic auth alone is not enough: the reviewer identity recorded on the
	// payment must belong to the configured admin set.
	body := strings.NewReader(`{"admin_id": 1234, "reason": "late"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/pay-1/reject", body)
	req.SetBasicAuth("ops", "secret")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_CancelManualRequiresReason(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/manual-queue/gen-1/cancel", strings.NewReader(`{}`))
	req.SetBasicAuth("ops", "secret")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
