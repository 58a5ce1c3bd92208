package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type studentStore interface {
	ListForAdvancement(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	AdvanceYearLevel(ctx context.Context, id string, from, to int) error
	ListAdvancedForPeriod(ctx context.Context, periodID string) ([]string, error)
	AdvanceYearLevelForPeriod(ctx context.Context, id string, from, to int, periodID string) error
}

type programReader interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// AdvancementRequest selects the students to advance. StudentIDs, when non-nil, restricts the run
// to that set (an empty set advances nobody). PeriodID, when set, records every advancement against
// that period and leaves students already recorded for it unchanged, so repeated runs advance once.
type AdvancementRequest struct {
	ProgramID  string   `json:"program_id"`
	PeriodID   string   `json:"period_id"`
	YearLevel  *int     `json:"year_level" validate:"omitempty,min=1,max=3"`
	StudentIDs []string `json:"student_ids"`
	DryRun     bool     `json:"dry_run"`
}

// AdvancementService computes and applies year-end advancement.
type AdvancementService struct {
	students  studentStore
	programs  programReader
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAdvancementService constructs AdvancementService.
func NewAdvancementService(students studentStore, programs programReader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AdvancementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdvancementService{students: students, programs: programs, validator: validate, metrics: metrics, logger: logger}
}

// Run advances every eligible student by one year level. Students in the final year are skipped.
// In execute mode each student is updated independently; failures are collected in the summary and
// reported through ErrAdvancementPartial while the successful updates stay committed.
func (s *AdvancementService) Run(ctx context.Context, req AdvancementRequest) (*models.AdvancementSummary, error) {
	start := time.Now()
	summary, err := s.run(ctx, req)
	s.metrics.ObserveAdvancement(req.DryRun, summary, err, time.Since(start))
	return summary, err
}

func (s *AdvancementService) run(ctx context.Context, req AdvancementRequest) (*models.AdvancementSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInvalidFilter, err, "year level filter must be 1, 2 or 3")
	}
	if req.ProgramID != "" {
		exists, err := s.programs.Exists(ctx, req.ProgramID)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load program")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrProgramNotFound, fmt.Sprintf("program %s not found", req.ProgramID))
		}
	}

	students, err := s.students.ListForAdvancement(ctx, models.StudentFilter{
		ProgramID:  req.ProgramID,
		YearLevel:  req.YearLevel,
		StudentIDs: req.StudentIDs,
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load students")
	}

	advanced := map[string]struct{}{}
	if req.PeriodID != "" {
		ids, err := s.students.ListAdvancedForPeriod(ctx, req.PeriodID)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load recorded advancements")
		}
		for _, id := range ids {
			advanced[id] = struct{}{}
		}
	}

	summary := &models.AdvancementSummary{DryRun: req.DryRun, Changes: []models.YearLevelChange{}}
	for _, student := range students {
		if _, ok := advanced[student.ID]; ok {
			summary.AlreadyAdvanced = append(summary.AlreadyAdvanced, student.ID)
			continue
		}
		if student.IsTerminalYear() {
			summary.Skipped++
			summary.TerminalStudents = append(summary.TerminalStudents, student.ID)
			continue
		}
		if student.YearLevel < models.FirstYearLevel {
			summary.Errors = append(summary.Errors, models.StudentError{
				StudentID: student.ID,
				Error:     fmt.Sprintf("invalid year level %d", student.YearLevel),
			})
			continue
		}

		change := models.YearLevelChange{
			StudentID: student.ID,
			ProgramID: student.ProgramID,
			From:      student.YearLevel,
			To:        student.YearLevel + 1,
		}
		if req.DryRun {
			summary.Eligible++
			summary.Changes = append(summary.Changes, change)
			summary.Advanced++
			continue
		}
		err := s.apply(ctx, req.PeriodID, change)
		if errors.Is(err, repository.ErrAlreadyAdvanced) {
			summary.AlreadyAdvanced = append(summary.AlreadyAdvanced, change.StudentID)
			continue
		}
		summary.Eligible++
		summary.Changes = append(summary.Changes, change)
		if err != nil {
			s.logger.Warn("student advancement failed", zap.String("student_id", change.StudentID), zap.Error(err))
			summary.Errors = append(summary.Errors, models.StudentError{StudentID: change.StudentID, Error: err.Error()})
			continue
		}
		summary.Advanced++
	}
	summary.Written = !req.DryRun && summary.Advanced > 0

	s.logger.Info("year advancement finished",
		zap.Bool("dry_run", req.DryRun),
		zap.String("program_id", req.ProgramID),
		zap.Int("eligible", summary.Eligible),
		zap.Int("advanced", summary.Advanced),
		zap.Int("skipped", summary.Skipped),
		zap.Int("already_advanced", len(summary.AlreadyAdvanced)),
		zap.Int("errors", len(summary.Errors)),
	)

	if len(summary.Errors) > 0 {
		return summary, appErrors.Clone(appErrors.ErrAdvancementPartial,
			fmt.Sprintf("%d students could not be advanced", len(summary.Errors)))
	}
	return summary, nil
}

func (s *AdvancementService) apply(ctx context.Context, periodID string, change models.YearLevelChange) error {
	if periodID == "" {
		return s.students.AdvanceYearLevel(ctx, change.StudentID, change.From, change.To)
	}
	return s.students.AdvanceYearLevelForPeriod(ctx, change.StudentID, change.From, change.To, periodID)
}
