package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flexa/stylebot/internal/config"
	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/repository"
	"github.com/flexa/stylebot/internal/service"
	"github.com/flexa/stylebot/internal/storage"
)

type Server struct {
	addr        string
	username    string
	password    string
	isAdmin     config.AdminChecker
	log         *slog.Logger
	users       *service.UserService
	styles      *service.StyleService
	payments    *service.PaymentService
	generations *service.GenerationService
	ledger      *service.LedgerService
	stats       *repository.StatsRepository
	uploader    *storage.Uploader
	router      *chi.Mux
}

func NewServer(addr, username, password string, isAdmin config.AdminChecker, log *slog.Logger, users *service.UserService, styles *service.StyleService, payments *service.PaymentService, generations *service.GenerationService, ledger *service.LedgerService, stats *repository.StatsRepository, uploader *storage.Uploader) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		username:    username,
		password:    password,
		isAdmin:     isAdmin,
		log:         log,
		users:       users,
		styles:      styles,
		payments:    payments,
		generations: generations,
		ledger:      ledger,
		stats:       stats,
		uploader:    uploader,
		router:      r,
	}
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/stats", s.handleStats)
		protected.Route("/payments", func(r chi.Router) {
			r.Get("/pending", s.handlePendingPayments)
			r.Post("/{id}/approve", s.handleApprovePayment)
			r.Post("/{id}/reject", s.handleRejectPayment)
		})
		protected.Route("/manual-queue", func(r chi.Router) {
			r.Get("/", s.handleManualQueue)
			r.Post("/{id}/complete", s.handleCompleteManual)
			r.Post("/{id}/cancel", s.handleCancelManual)
		})
		protected.Route("/styles", func(r chi.Router) {
			r.Get("/", s.handleListStyles)
			r.Post("/", s.handleCreateStyle)
			r.Put("/{id}", s.handleUpdateStyle)
			r.Delete("/{id}", s.handleDeleteStyle)
		})
		protected.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/{id}/ban", s.handleSetBanned(true))
			r.Post("/{id}/unban", s.handleSetBanned(false))
			r.Post("/{id}/credits", s.handleAdjustCredits)
			r.Get("/{id}/ledger", s.handleLedgerHistory)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePendingPayments(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	payments, total, err := s.payments.Pending(r.Context(), page, pageSize)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"page":     page,
	})
}

type reviewRequest struct {
	AdminID int64  `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !s.requireAdmin(w, req.AdminID) {
		return
	}
	res, err := s.payments.Approve(r.Context(), chi.URLParam(r, "id"), req.AdminID)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     res.UserID,
		"credits":     res.Credits,
		"new_balance": res.NewBalance,
	})
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		http.Error(w, "reason required", http.StatusBadRequest)
		return
	}
	if !s.requireAdmin(w, req.AdminID) {
		return
	}
	if err := s.payments.Reject(r.Context(), chi.URLParam(r, "id"), req.AdminID, req.Reason); err != nil {
		s.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualQueue(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	tasks, total, err := s.generations.ManualQueue(r.Context(), page, pageSize)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"total": total,
		"page":  page,
	})
}

type completeManualRequest struct {
	AdminID   int64  `json:"admin_id"`
	ResultURL string `json:"result_url"`
}

func (s *Server) handleCompleteManual(w http.ResponseWriter, r *http.Request) {
	var req completeManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ResultURL) == "" {
		http.Error(w, "result_url required", http.StatusBadRequest)
		return
	}
	if !s.requireAdmin(w, req.AdminID) {
		return
	}
	// Re-host the operator's result so the delivered URL outlives wherever
	// the file was originally parked.
	resultURL := req.ResultURL
	if s.uploader != nil {
		hosted, err := s.uploader.UploadFromURL(r.Context(), storage.CategoryResults, req.ResultURL)
		if err != nil {
			s.log.Warn("rehost manual result failed, using source url", "err", err)
		} else {
			resultURL = hosted
		}
	}
	if err := s.generations.ResolveManual(r.Context(), chi.URLParam(r, "id"), req.AdminID, resultURL); err != nil {
		s.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelManualRequest struct {
	AdminID int64  `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (s *Server) handleCancelManual(w http.ResponseWriter, r *http.Request) {
	var req cancelManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		http.Error(w, "reason required", http.StatusBadRequest)
		return
	}
	if !s.requireAdmin(w, req.AdminID) {
		return
	}
	if err := s.generations.CancelManual(r.Context(), chi.URLParam(r, "id"), req.AdminID, req.Reason); err != nil {
		s.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := s.styles.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, styles)
}

type styleRequest struct {
	NameEN          string `json:"name_en"`
	NameAM          string `json:"name_am"`
	DescriptionEN   string `json:"description_en"`
	DescriptionAM   string `json:"description_am"`
	PromptTemplate  string `json:"prompt_template"`
	CreditCost      int    `json:"credit_cost"`
	IsActive        *bool  `json:"is_active"`
	DisplayOrder    int    `json:"display_order"`
	PreviewImageURL string `json:"preview_image_url"`
}

func (r styleRequest) toModel(id string) *models.Style {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &models.Style{
		ID:              id,
		NameEN:          r.NameEN,
		NameAM:          r.NameAM,
		DescriptionEN:   r.DescriptionEN,
		DescriptionAM:   r.DescriptionAM,
		PromptTemplate:  r.PromptTemplate,
		CreditCost:      r.CreditCost,
		IsActive:        active,
		DisplayOrder:    r.DisplayOrder,
		PreviewImageURL: r.PreviewImageURL,
	}
}

func (s *Server) handleCreateStyle(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	style, err := s.styles.Create(r.Context(), req.toModel(""))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, style)
}

func (s *Server) handleUpdateStyle(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	style, err := s.styles.Update(r.Context(), req.toModel(chi.URLParam(r, "id")))
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, style)
}

func (s *Server) handleDeleteStyle(w http.ResponseWriter, r *http.Request) {
	if err := s.styles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	users, total, err := s.users.Page(r.Context(), page, pageSize)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
	})
}

func (s *Server) handleSetBanned(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		if err := s.users.SetBanned(r.Context(), id, banned); err != nil {
			s.domainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type adjustCreditsRequest struct {
	Amount  int    `json:"amount"`
	AdminID int64  `json:"admin_id"`
	Note    string `json:"note"`
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req adjustCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !s.requireAdmin(w, req.AdminID) {
		return
	}
	newBalance, err := s.ledger.AdminAdjust(r.Context(), id, req.Amount, req.AdminID, req.Note)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"new_balance": newBalance})
}

func (s *Server) handleLedgerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.ledger.History(r.Context(), id, limit)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="stylebot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin rejects reviewing actions whose admin_id is not in the
// configured admin set. Basic auth gates the panel; this pins the recorded
// reviewer identity to a real admin.
func (s *Server) requireAdmin(w http.ResponseWriter, adminID int64) bool {
	if s.isAdmin == nil || !s.isAdmin(adminID) {
		http.Error(w, "unknown admin id", http.StatusForbidden)
		return false
	}
	return true
}

// domainError translates repository sentinels into HTTP statuses: missing
// rows become 404, lost status races become 409, balance problems become 422.
func (s *Server) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrStyleNotFound),
		errors.Is(err, repository.ErrGenerationNotFound),
		errors.Is(err, repository.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, repository.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
