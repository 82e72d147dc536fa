package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/metrics"
	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/notify"
	"github.com/digkill/web3analysis/internal/openai"
)

// Analyzer is the AI backend used to produce reports.
type Analyzer interface {
	CheckAnalyzable(ctx context.Context, projectName string) (*openai.Verdict, error)
	GenerateAnalysis(ctx context.Context, projectName string) (*models.ReportContent, error)
	GenerateImage(ctx context.Context, description string) (*openai.Image, error)
}

// ImageStore copies a generated image to durable storage.
type ImageStore interface {
	UploadFromURL(ctx context.Context, sourceURL string) (string, error)
}

type GenerationService struct {
	cfg      config.Config
	log      *slog.Logger
	tx       Transactor
	ledger   *LedgerService
	guard    *GuardService
	reports  ReportStore
	ai       Analyzer
	images   ImageStore
	notifier notify.Notifier
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type GenerateInput struct {
	ProjectName string
	Address     string
}

type GenerateResult struct {
	Report *models.Report
	// Reused is set when a recent report was returned instead of generating.
	Reused bool
}

func NewGenerationService(cfg config.Config, log *slog.Logger, tx Transactor, ledger *LedgerService, guard *GuardService, reports ReportStore, ai Analyzer, images ImageStore, notifier notify.Notifier) *GenerationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &GenerationService{
		cfg:      cfg,
		log:      log,
		tx:       tx,
		ledger:   ledger,
		guard:    guard,
		reports:  reports,
		ai:       ai,
		images:   images,
		notifier: notifier,
		now:      utcNow,
		sleep:    sleepCtx,
	}
}

// Generate runs the report workflow for one (project, wallet) request:
// recent-report reuse, guard, balance check, analyzability check, content
// with retries, image with placeholder fallback, save with creator grant,
// then debit. The guard is released as completed or failed on every path
// that acquired it.
func (s *GenerationService) Generate(ctx context.Context, input GenerateInput) (res *GenerateResult, err error) {
	projectName := strings.TrimSpace(input.ProjectName)
	address := strings.TrimSpace(input.Address)
	if projectName == "" {
		return nil, invalid("Project name is required")
	}
	if address == "" {
		return nil, invalid("Address cannot be empty")
	}

	start := time.Now()
	log := s.log.With("project", projectName, "user_address", address)
	defer func() {
		metrics.RecordGeneration(generationOutcome(res, err), time.Since(start))
	}()

	if recent, err := s.findRecent(ctx, log, projectName, address); recent != nil || err != nil {
		return recent, err
	}

	lease, err := s.guard.Acquire(ctx, projectName, address)
	if err != nil {
		if errors.Is(err, ErrDuplicateInProgress) {
			log.Info("generation already in progress")
		}
		return nil, err
	}
	defer func() {
		status := models.RequestCompleted
		if err != nil {
			status = models.RequestFailed
		}
		s.guard.Release(context.WithoutCancel(ctx), lease, status)
	}()

	// A request that finished between the first lookup and Acquire has
	// already saved and charged.
	if recent, err := s.findRecent(ctx, log, projectName, address); recent != nil || err != nil {
		return recent, err
	}

	balance, err := s.ledger.Balance(ctx, address)
	if err != nil {
		return nil, err
	}
	if balance.LeftCredits < s.cfg.GenerationCost {
		log.Info("insufficient credits for generation", "left_credits", balance.LeftCredits)
		return nil, ErrInsufficientCredits
	}

	verdict, err := s.ai.CheckAnalyzable(ctx, projectName)
	if err != nil {
		log.Error("analyzability check failed", "err", err)
		return nil, fmt.Errorf("%w: project check failed: %v", ErrGenerationFailed, err)
	}
	if !verdict.Analyzable {
		log.Info("project not analyzable", "reason", verdict.Reason)
		return nil, &openai.NotAnalyzableError{Reason: verdict.Reason}
	}

	content, err := s.generateContent(ctx, log, projectName)
	if err != nil {
		return nil, err
	}

	imageURL := s.renderImage(ctx, log, projectName, content.Summary.ImageDescription)

	var saved *models.Report
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		var err error
		saved, err = s.reports.Insert(ctx, &models.Report{
			ProjectName: projectName,
			Summary:     content.Summary.Description,
			Content:     *content,
			ImageURL:    imageURL,
			Address:     address,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		_, err = s.reports.GrantAccess(ctx, address, saved.ID, now)
		return err
	})
	if err != nil {
		log.Error("save report", "err", err)
		return nil, fmt.Errorf("save report: %w", err)
	}

	reportID := saved.ID
	if _, err = s.ledger.Debit(ctx, DebitRequest{
		Address:  address,
		Amount:   s.cfg.GenerationCost,
		Reason:   models.ConsumeGenerate,
		ReportID: &reportID,
	}); err != nil {
		log.Error("debit after report save", "report_id", reportID, "err", err)
		s.notifier.Alert(context.WithoutCancel(ctx), fmt.Sprintf("Report %d for %s saved but %d credits were not deducted from %s: %v", reportID, projectName, s.cfg.GenerationCost, address, err))
		return nil, fmt.Errorf("%w: %v", ErrDebitAfterSave, err)
	}

	log.Info("report generated", "report_id", reportID, "duration_ms", time.Since(start).Milliseconds())
	return &GenerateResult{Report: saved}, nil
}

func (s *GenerationService) findRecent(ctx context.Context, log *slog.Logger, projectName, address string) (*GenerateResult, error) {
	recent, err := s.reports.FindRecent(ctx, projectName, address, s.now().Add(-s.cfg.RecentReportWindow))
	if err != nil {
		return nil, fmt.Errorf("find recent report: %w", err)
	}
	if recent == nil {
		return nil, nil
	}
	log.Info("returning recent report", "report_id", recent.ID)
	return &GenerateResult{Report: recent, Reused: true}, nil
}

// generateContent retries transient failures with linear backoff. A
// not-analyzable answer or a structurally invalid body ends the loop.
func (s *GenerationService) generateContent(ctx context.Context, log *slog.Logger, projectName string) (*models.ReportContent, error) {
	attempts := max(1, s.cfg.GenerationMaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := s.ai.GenerateAnalysis(ctx, projectName)
		if err == nil {
			return content, nil
		}

		var notAnalyzable *openai.NotAnalyzableError
		if errors.As(err, &notAnalyzable) {
			return nil, err
		}
		if errors.Is(err, openai.ErrInvalidContent) {
			log.Warn("analysis missing required fields", "attempt", attempt)
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}

		lastErr = err
		log.Warn("analysis attempt failed", "attempt", attempt, "max_attempts", attempts, "err", err)
		if attempt < attempts {
			if err := s.sleep(ctx, s.cfg.GenerationBackoff*time.Duration(attempt)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
			}
		}
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", ErrGenerationFailed, attempts, lastErr)
}

// renderImage never fails the workflow; any problem yields the placeholder.
func (s *GenerationService) renderImage(ctx context.Context, log *slog.Logger, projectName, description string) string {
	if strings.TrimSpace(description) == "" {
		description = projectName
	}
	img, err := s.ai.GenerateImage(ctx, description)
	if err != nil {
		log.Warn("image generation failed, using placeholder", "err", err)
		return s.cfg.PlaceholderImageURL
	}
	if s.images == nil {
		log.Warn("object storage not configured, using placeholder")
		return s.cfg.PlaceholderImageURL
	}
	url, err := s.images.UploadFromURL(ctx, img.URL)
	if err != nil {
		log.Warn("image upload failed, using placeholder", "err", err)
		return s.cfg.PlaceholderImageURL
	}
	return url
}

func generationOutcome(res *GenerateResult, err error) string {
	var notAnalyzable *openai.NotAnalyzableError
	switch {
	case err == nil && res != nil && res.Reused:
		return "reused"
	case err == nil:
		return "generated"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrDuplicateInProgress):
		return "duplicate"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.As(err, &notAnalyzable):
		return "not_analyzable"
	case errors.Is(err, ErrDebitAfterSave):
		return "debit_failed"
	default:
		return "failed"
	}
}
