package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type periodReader interface {
	FindByID(ctx context.Context, id string) (*models.EvaluationPeriod, error)
}

type enrollmentStore interface {
	ListActiveByPeriod(ctx context.Context, periodID string) ([]models.Enrollment, error)
	ListKeysByPeriod(ctx context.Context, periodID string) ([]models.EnrollmentKey, error)
	CreateBatch(ctx context.Context, enrollments []models.Enrollment) (int, error)
}

type advancementRunner interface {
	Run(ctx context.Context, req AdvancementRequest) (*models.AdvancementSummary, error)
}

// TransitionLocker serialises execute-mode transitions targeting the same period.
type TransitionLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// TransitionRequest describes an enrollment transition between two evaluation periods.
type TransitionRequest struct {
	FromPeriodID    string `json:"from_period_id" validate:"required"`
	ToPeriodID      string `json:"to_period_id" validate:"required,nefield=FromPeriodID"`
	AutoAdvanceYear bool   `json:"auto_advance_year"`
	DryRun          bool   `json:"dry_run"`
}

// TransitionService copies active enrollments from one evaluation period into the next.
type TransitionService struct {
	periods     periodReader
	enrollments enrollmentStore
	advancement advancementRunner
	locker      TransitionLocker
	lockTTL     time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// TransitionServiceOption configures the service.
type TransitionServiceOption func(*TransitionService)

// WithTransitionLocker guards execute-mode runs with the provided locker.
func WithTransitionLocker(locker TransitionLocker, ttl time.Duration) TransitionServiceOption {
	return func(s *TransitionService) {
		if locker != nil {
			s.locker = locker
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithTransitionMetrics records run outcomes.
func WithTransitionMetrics(metrics *MetricsService) TransitionServiceOption {
	return func(s *TransitionService) {
		s.metrics = metrics
	}
}

// WithTransitionValidator overrides the request validator.
func WithTransitionValidator(validate *validator.Validate) TransitionServiceOption {
	return func(s *TransitionService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewTransitionService constructs the service with defaults.
func NewTransitionService(periods periodReader, enrollments enrollmentStore, advancement advancementRunner, logger *zap.Logger, opts ...TransitionServiceOption) *TransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransitionService{
		periods:     periods,
		enrollments: enrollments,
		advancement: advancement,
		lockTTL:     10 * time.Minute,
		validator:   validator.New(),
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateNextPeriodEnrollments stages a copy of every active enrollment of the source period that
// does not already exist in the target period, and writes the batch in execute mode.
//
// All validation and reads happen before any write. When the enrollment batch fails it is rolled back
// as a whole; advancement already committed by AutoAdvanceYear is still reported in the summary that
// is returned alongside the error. Advancement is recorded against the target period, so running the
// same transition again advances nobody twice.
func (s *TransitionService) CreateNextPeriodEnrollments(ctx context.Context, req TransitionRequest) (*models.TransitionSummary, error) {
	start := time.Now()
	summary, err := s.run(ctx, req)
	s.metrics.ObserveTransition(req.DryRun, summary, err, time.Since(start))
	return summary, err
}

func (s *TransitionService) run(ctx context.Context, req TransitionRequest) (*models.TransitionSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "source and target period ids are required and must differ")
	}

	from, err := s.loadPeriod(ctx, req.FromPeriodID, "source")
	if err != nil {
		return nil, err
	}
	to, err := s.loadPeriod(ctx, req.ToPeriodID, "target")
	if err != nil {
		return nil, err
	}
	if !from.CanBeTransitionSource() {
		return nil, appErrors.Clone(appErrors.ErrInvalidPeriodState,
			fmt.Sprintf("source period %s is %s; it must be active or closed", from.ID, from.Status))
	}
	if !to.AcceptsEnrollments() {
		return nil, appErrors.Clone(appErrors.ErrInvalidPeriodState,
			fmt.Sprintf("target period %s is %s; it must be draft or active", to.ID, to.Status))
	}

	if !req.DryRun {
		release, err := s.acquire(ctx, to.ID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("failed to release transition lock", zap.String("to_period_id", to.ID), zap.Error(err))
			}
		}()
	}

	summary := &models.TransitionSummary{
		FromPeriodID:    from.ID,
		ToPeriodID:      to.ID,
		DryRun:          req.DryRun,
		NewAcademicYear: isNewAcademicYear(from, to),
		Staged:          []models.StagedEnrollment{},
	}

	source, err := s.enrollments.ListActiveByPeriod(ctx, from.ID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load source enrollments")
	}
	existing, err := s.enrollments.ListKeysByPeriod(ctx, to.ID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load target enrollments")
	}

	var advancementErr error
	if req.AutoAdvanceYear {
		if !summary.NewAcademicYear {
			s.logger.Warn("advancing year levels within the same academic year",
				zap.String("academic_year", from.AcademicYear))
		}
		adv, err := s.advancement.Run(ctx, AdvancementRequest{
			PeriodID:   to.ID,
			StudentIDs: distinctStudents(source),
			DryRun:     req.DryRun,
		})
		if err != nil && !errors.Is(err, appErrors.ErrAdvancementPartial) {
			return nil, err
		}
		advancementErr = err
		summary.Advancement = adv
		if adv != nil {
			summary.StudentsAdvanced = adv.Advanced
		}
	}

	stage(summary, source, existing)

	if req.DryRun {
		summary.EnrollmentsCreated = len(summary.Staged)
		s.logTransition(summary)
		return summary, advancementErr
	}

	rows := make([]models.Enrollment, 0, len(summary.Staged))
	for _, staged := range summary.Staged {
		rows = append(rows, models.Enrollment{
			StudentID:          staged.StudentID,
			ClassSectionID:     staged.ClassSectionID,
			EvaluationPeriodID: to.ID,
			Status:             models.EnrollmentStatusActive,
		})
	}
	inserted, err := s.enrollments.CreateBatch(ctx, rows)
	if err != nil {
		summary.Written = summary.Advancement != nil && summary.Advancement.Written
		s.logger.Error("enrollment batch rolled back",
			zap.String("from_period_id", from.ID),
			zap.String("to_period_id", to.ID),
			zap.Int("staged", len(rows)),
			zap.Int("students_advanced", summary.StudentsAdvanced),
			zap.Error(err))
		return summary, appErrors.WrapAs(appErrors.ErrTransitionExecution, err,
			fmt.Sprintf("failed to write %d enrollments; batch rolled back", len(rows)))
	}

	// Rows that lost a race against a concurrent writer hit the unique index and count as skipped.
	summary.EnrollmentsCreated = inserted
	summary.EnrollmentsSkipped += len(rows) - inserted
	summary.Written = inserted > 0 || (summary.Advancement != nil && summary.Advancement.Written)
	s.logTransition(summary)
	return summary, advancementErr
}

func (s *TransitionService) loadPeriod(ctx context.Context, id, role string) (*models.EvaluationPeriod, error) {
	period, err := s.periods.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPeriodNotFound, fmt.Sprintf("%s evaluation period %s not found", role, id))
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, fmt.Sprintf("failed to load %s evaluation period", role))
	}
	return period, nil
}

func (s *TransitionService) acquire(ctx context.Context, periodID string) (func(context.Context) error, error) {
	if s.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	release, err := s.locker.Acquire(ctx, periodID, s.lockTTL)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			return nil, appErrors.Clone(appErrors.ErrTransitionLocked,
				fmt.Sprintf("another transition into period %s is running", periodID))
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to acquire transition lock")
	}
	return release, nil
}

func (s *TransitionService) logTransition(summary *models.TransitionSummary) {
	s.logger.Info("enrollment transition finished",
		zap.String("from_period_id", summary.FromPeriodID),
		zap.String("to_period_id", summary.ToPeriodID),
		zap.Bool("dry_run", summary.DryRun),
		zap.Bool("written", summary.Written),
		zap.Bool("new_academic_year", summary.NewAcademicYear),
		zap.Int("students_affected", summary.StudentsAffected),
		zap.Int("enrollments_created", summary.EnrollmentsCreated),
		zap.Int("enrollments_skipped", summary.EnrollmentsSkipped),
		zap.Int("students_advanced", summary.StudentsAdvanced),
	)
}

// stage fills summary.Staged with source enrollments missing from the target period.
func stage(summary *models.TransitionSummary, source []models.Enrollment, existing []models.EnrollmentKey) {
	taken := make(map[models.EnrollmentKey]struct{}, len(existing)+len(source))
	for _, key := range existing {
		taken[key] = struct{}{}
	}
	students := make(map[string]struct{})
	for _, enrollment := range source {
		key := enrollment.Key()
		if _, ok := taken[key]; ok {
			summary.EnrollmentsSkipped++
			continue
		}
		taken[key] = struct{}{}
		students[enrollment.StudentID] = struct{}{}
		summary.Staged = append(summary.Staged, models.StagedEnrollment{
			StudentID:          enrollment.StudentID,
			ClassSectionID:     enrollment.ClassSectionID,
			SourceEnrollmentID: enrollment.ID,
		})
	}
	summary.StudentsAffected = len(students)
}

func distinctStudents(enrollments []models.Enrollment) []string {
	seen := make(map[string]struct{}, len(enrollments))
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if _, ok := seen[e.StudentID]; ok {
			continue
		}
		seen[e.StudentID] = struct{}{}
		ids = append(ids, e.StudentID)
	}
	return ids
}

func isNewAcademicYear(from, to *models.EvaluationPeriod) bool {
	return !strings.EqualFold(strings.TrimSpace(from.AcademicYear), strings.TrimSpace(to.AcademicYear))
}
