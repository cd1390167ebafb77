package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flexa/stylebot/internal/ai"
	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/notify"
	"github.com/flexa/stylebot/internal/observability"
	"github.com/flexa/stylebot/internal/repository"
)

// Transformer is the external image-to-image call. Satisfied by *ai.Client.
type Transformer interface {
	Transform(ctx context.Context, imageURL, prompt string) (*ai.Result, error)
}

// GenerationStore is the persistence surface the workflow needs. Satisfied by
// *repository.GenerationRepository.
type GenerationStore interface {
	CreateCharged(ctx context.Context, gen *models.Generation) (int, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id, resultURL, provider string, durationMS int64) error
	Fail(ctx context.Context, id, errMsg string) error
	QueueManual(ctx context.Context, id, errMsg, provider string, durationMS int64) error
	ResolveManualComplete(ctx context.Context, id, resultURL string) error
	CancelManual(ctx context.Context, id, reason string) (*repository.CancelResult, error)
	QueueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Get(ctx context.Context, id string) (*models.Generation, error)
	ActiveForUser(ctx context.Context, userID int64) (*models.Generation, error)
	ManualQueuePage(ctx context.Context, page, pageSize int) ([]models.ManualTask, int, error)
}

type userGetter interface {
	Get(ctx context.Context, id int64) (*models.User, error)
}

type styleGetter interface {
	GetByID(ctx context.Context, id string) (*models.Style, error)
}

type GenerationService struct {
	log         *slog.Logger
	generations GenerationStore
	users       userGetter
	styles      styleGetter
	transformer Transformer
	retry       RetryPolicy
	events      notify.Emitter
}

func NewGenerationService(log *slog.Logger, generations GenerationStore, users userGetter, styles styleGetter, transformer Transformer, retry RetryPolicy, events notify.Emitter) *GenerationService {
	return &GenerationService{
		log:         log,
		generations: generations,
		users:       users,
		styles:      styles,
		transformer: transformer,
		retry:       retry,
		events:      events,
	}
}

// Start charges the user and records a pending generation in one transaction.
// The caller then hands the returned generation to Run, typically on its own
// goroutine. Returns the generation and the balance after the debit.
func (s *GenerationService) Start(ctx context.Context, userID int64, styleID, photoURL string) (*models.Generation, int, error) {
	style, err := s.styles.GetByID(ctx, styleID)
	if err != nil {
		return nil, 0, err
	}
	if !style.IsActive {
		return nil, 0, repository.ErrStyleNotFound
	}

	gen := &models.Generation{
		UserID:           userID,
		StyleID:          style.ID,
		OriginalPhotoURL: photoURL,
		CreditsSpent:     style.CreditCost,
	}
	newBalance, err := s.generations.CreateCharged(ctx, gen)
	if err != nil {
		return nil, 0, err
	}
	observability.LedgerTransactionsTotal.WithLabelValues(string(models.TransactionGeneration)).Inc()

	s.log.Info("generation started", "generation_id", gen.ID, "user_id", userID, "style_id", style.ID, "credits_spent", gen.CreditsSpent, "balance", newBalance)
	return gen, newBalance, nil
}

// Run drives a charged generation to a terminal state: transform with bounded
// retries, then complete, or queue for a human when the provider keeps
// flaking, or fail outright on a definitive provider answer. The user keeps
// their charge on failure; refunds happen only when an operator cancels a
// queued task.
func (s *GenerationService) Run(ctx context.Context, gen *models.Generation) error {
	style, err := s.styles.GetByID(ctx, gen.StyleID)
	if err != nil {
		return fmt.Errorf("load style: %w", err)
	}

	if err := s.generations.MarkProcessing(ctx, gen.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	start := time.Now()
	var result *ai.Result
	transformErr := s.retry.Do(ctx, func() error {
		var err error
		result, err = s.transformer.Transform(ctx, gen.OriginalPhotoURL, style.PromptTemplate)
		return err
	})
	observability.AITransformDuration.Observe(time.Since(start).Seconds())

	// The caller's context may already be dead by the time the transform
	// gives up; the terminal transition must still land.
	ctx = context.WithoutCancel(ctx)

	if transformErr == nil {
		return s.complete(ctx, gen, result)
	}

	durationMS := time.Since(start).Milliseconds()
	if errors.Is(transformErr, ai.ErrTransient) ||
		errors.Is(transformErr, context.DeadlineExceeded) ||
		errors.Is(transformErr, context.Canceled) {
		return s.queueManual(ctx, gen, style, transformErr.Error(), durationMS)
	}

	if err := s.generations.Fail(ctx, gen.ID, transformErr.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	observability.GenerationsTotal.WithLabelValues(string(models.GenerationFailed)).Inc()
	s.log.Error("generation failed", "generation_id", gen.ID, "user_id", gen.UserID, "err", transformErr)
	return nil
}

func (s *GenerationService) complete(ctx context.Context, gen *models.Generation, result *ai.Result) error {
	if err := s.generations.Complete(ctx, gen.ID, result.URL, result.Provider, result.DurationMS); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	observability.GenerationsTotal.WithLabelValues(string(models.GenerationCompleted)).Inc()
	s.log.Info("generation completed", "generation_id", gen.ID, "user_id", gen.UserID, "duration_ms", result.DurationMS)

	if user, err := s.users.Get(ctx, gen.UserID); err == nil {
		s.events.Emit(notify.GenerationCompleted{
			UserID:    user.ID,
			Language:  user.Language,
			ResultURL: result.URL,
		})
	}
	return nil
}

func (s *GenerationService) queueManual(ctx context.Context, gen *models.Generation, style *models.Style, errMsg string, durationMS int64) error {
	if err := s.generations.QueueManual(ctx, gen.ID, errMsg, gen.APIProvider, durationMS); err != nil {
		return fmt.Errorf("queue manual: %w", err)
	}
	observability.GenerationsTotal.WithLabelValues(string(models.GenerationManualQueue)).Inc()
	s.log.Warn("generation queued for manual handling", "generation_id", gen.ID, "user_id", gen.UserID, "err", errMsg)

	user, err := s.users.Get(ctx, gen.UserID)
	if err != nil {
		return nil
	}
	_, total, err := s.generations.ManualQueuePage(ctx, 1, 1)
	if err != nil {
		total = 0
	}
	s.events.Emit(notify.GenerationQueuedManual{
		Generation: *gen,
		User:       *user,
		StyleName:  style.NameEN,
		Prompt:     style.PromptTemplate,
		QueueTotal: total,
	})
	return nil
}

// ResolveManual records the hand-made result for a queued task and notifies
// the user.
func (s *GenerationService) ResolveManual(ctx context.Context, id string, adminID int64, resultURL string) error {
	if resultURL == "" {
		return fmt.Errorf("result URL cannot be empty")
	}
	gen, err := s.generations.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.generations.ResolveManualComplete(ctx, id, resultURL); err != nil {
		return err
	}
	observability.GenerationsTotal.WithLabelValues(string(models.GenerationCompleted)).Inc()
	s.log.Info("manual task resolved", "generation_id", id, "user_id", gen.UserID, "admin_id", adminID)

	if user, err := s.users.Get(ctx, gen.UserID); err == nil {
		s.events.Emit(notify.GenerationCompleted{
			UserID:    user.ID,
			Language:  user.Language,
			ResultURL: resultURL,
		})
	}
	return nil
}

// CancelManual fails a queued task and refunds the charge, exactly once.
func (s *GenerationService) CancelManual(ctx context.Context, id string, adminID int64, reason string) error {
	res, err := s.generations.CancelManual(ctx, id, reason)
	if err != nil {
		return err
	}
	observability.GenerationsTotal.WithLabelValues(string(models.GenerationFailed)).Inc()
	observability.LedgerTransactionsTotal.WithLabelValues(string(models.TransactionAdminAdjustment)).Inc()
	s.log.Info("manual task cancelled", "generation_id", id, "user_id", res.UserID, "refunded", res.Refunded, "admin_id", adminID)

	if user, err := s.users.Get(ctx, res.UserID); err == nil {
		s.events.Emit(notify.GenerationCancelled{
			UserID:     user.ID,
			Language:   user.Language,
			Reason:     reason,
			Refunded:   res.Refunded,
			NewBalance: res.NewBalance,
		})
	}
	return nil
}

// QueueStale sweeps pending and processing generations older than the cutoff
// into the manual queue. Meant to run periodically from the scheduler in main.
func (s *GenerationService) QueueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	moved, err := s.generations.QueueStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Warn("stale generations moved to manual queue", "count", moved, "older_than", olderThan)
	}
	return moved, nil
}

// ManualQueue returns a page of queued tasks, oldest first, with the total.
func (s *GenerationService) ManualQueue(ctx context.Context, page, pageSize int) ([]models.ManualTask, int, error) {
	return s.generations.ManualQueuePage(ctx, page, pageSize)
}

// Active reports the user's in-flight generation, nil when they are free to
// start another.
func (s *GenerationService) Active(ctx context.Context, userID int64) (*models.Generation, error) {
	return s.generations.ActiveForUser(ctx, userID)
}
