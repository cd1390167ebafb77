package service

import (
	"context"
	"log/slog"

	"github.com/flexa/stylebot/internal/config"
	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/notify"
	"github.com/flexa/stylebot/internal/observability"
	"github.com/flexa/stylebot/internal/repository"
)

type UserService struct {
	cfg    config.Config
	log    *slog.Logger
	users  *repository.UserRepository
	events notify.Emitter
}

func NewUserService(cfg config.Config, log *slog.Logger, users *repository.UserRepository, events notify.Emitter) *UserService {
	return &UserService{
		cfg:    cfg,
		log:    log,
		users:  users,
		events: events,
	}
}

// Ensure registers the chat identity on first contact, granting the welcome
// bonus once, and refreshes the profile on every later contact.
func (s *UserService) Ensure(ctx context.Context, id int64, username, firstName string) (*models.User, error) {
	user, created, err := s.users.Ensure(ctx, id, username, firstName, s.cfg.DefaultLanguage, s.cfg.BonusCredits)
	if err != nil {
		return nil, err
	}
	if created {
		observability.LedgerTransactionsTotal.WithLabelValues(string(models.TransactionBonus)).Inc()
		s.log.Info("user registered", "user_id", id, "bonus_credits", s.cfg.BonusCredits)
		s.events.Emit(notify.UserJoined{User: *user})
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.users.Get(ctx, id)
}

func (s *UserService) SetLanguage(ctx context.Context, id int64, language models.Language) error {
	return s.users.SetLanguage(ctx, id, language)
}

// SetBanned flips the ban flag. Banned users keep their balance; they just
// cannot act on it.
func (s *UserService) SetBanned(ctx context.Context, id int64, banned bool) error {
	if err := s.users.SetBanned(ctx, id, banned); err != nil {
		return err
	}
	s.log.Info("user ban flag changed", "user_id", id, "banned", banned)
	return nil
}

func (s *UserService) Page(ctx context.Context, page, pageSize int) ([]models.User, int, error) {
	return s.users.Page(ctx, page, pageSize)
}
