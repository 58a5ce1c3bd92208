package service

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/export"
)

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
}

// ReportService renders run summaries into CSV or PDF files.
type ReportService struct {
	storage reportStorage
	logger  *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(storage reportStorage, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{storage: storage, logger: logger}
}

// WriteTransition renders the staged enrollments of a transition. The format follows the file extension.
func (s *ReportService) WriteTransition(path string, summary *models.TransitionSummary) (string, error) {
	if summary == nil {
		return "", fmt.Errorf("transition summary is required")
	}
	return s.write(path, TransitionDataset(summary))
}

// WriteAdvancement renders the year-level changes of an advancement run.
func (s *ReportService) WriteAdvancement(path string, summary *models.AdvancementSummary) (string, error) {
	if summary == nil {
		return "", fmt.Errorf("advancement summary is required")
	}
	return s.write(path, AdvancementDataset(summary))
}

func (s *ReportService) write(path string, data export.Dataset) (string, error) {
	format, err := export.FormatFromPath(path)
	if err != nil {
		return "", err
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return "", err
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return "", fmt.Errorf("render %s report: %w", format, err)
	}
	fullPath, err := s.storage.Save(path, payload)
	if err != nil {
		return "", err
	}
	s.logger.Info("report written", zap.String("path", fullPath), zap.String("format", string(format)), zap.Int("rows", len(data.Rows)))
	return fullPath, nil
}

// TransitionDataset flattens a transition summary into report rows.
func TransitionDataset(summary *models.TransitionSummary) export.Dataset {
	mode := modeLabel(summary.DryRun)
	data := export.Dataset{
		Title: fmt.Sprintf("Enrollment transition %s -> %s (%s)", summary.FromPeriodID, summary.ToPeriodID, mode),
		Notes: []string{
			fmt.Sprintf("students affected: %d", summary.StudentsAffected),
			fmt.Sprintf("enrollments created: %d", summary.EnrollmentsCreated),
			fmt.Sprintf("enrollments skipped: %d", summary.EnrollmentsSkipped),
			fmt.Sprintf("students advanced: %d", summary.StudentsAdvanced),
			fmt.Sprintf("students already advanced: %d", alreadyAdvanced(summary.Advancement)),
			fmt.Sprintf("new academic year: %t", summary.NewAcademicYear),
		},
		Headers: []string{"student_id", "class_section_id", "source_enrollment_id", "to_period_id"},
	}
	for _, staged := range summary.Staged {
		data.Rows = append(data.Rows, map[string]string{
			"student_id":           staged.StudentID,
			"class_section_id":     staged.ClassSectionID,
			"source_enrollment_id": staged.SourceEnrollmentID,
			"to_period_id":         summary.ToPeriodID,
		})
	}
	return data
}

// AdvancementDataset flattens an advancement summary into report rows. Failed students are listed
// after the applied changes.
func AdvancementDataset(summary *models.AdvancementSummary) export.Dataset {
	data := export.Dataset{
		Title: fmt.Sprintf("Year advancement (%s)", modeLabel(summary.DryRun)),
		Notes: []string{
			fmt.Sprintf("eligible: %d", summary.Eligible),
			fmt.Sprintf("advanced: %d", summary.Advanced),
			fmt.Sprintf("skipped: %d", summary.Skipped),
			fmt.Sprintf("already advanced: %d", len(summary.AlreadyAdvanced)),
			fmt.Sprintf("errors: %d", len(summary.Errors)),
		},
		Headers: []string{"student_id", "program_id", "from_year", "to_year", "error"},
	}
	failed := make(map[string]string, len(summary.Errors))
	for _, e := range summary.Errors {
		failed[e.StudentID] = e.Error
	}
	for _, change := range summary.Changes {
		data.Rows = append(data.Rows, map[string]string{
			"student_id": change.StudentID,
			"program_id": change.ProgramID,
			"from_year":  strconv.Itoa(change.From),
			"to_year":    strconv.Itoa(change.To),
			"error":      failed[change.StudentID],
		})
		delete(failed, change.StudentID)
	}
	for _, e := range summary.Errors {
		if _, ok := failed[e.StudentID]; !ok {
			continue
		}
		data.Rows = append(data.Rows, map[string]string{"student_id": e.StudentID, "error": e.Error})
	}
	return data
}

func modeLabel(dryRun bool) string {
	if dryRun {
		return "dry run"
	}
	return "executed"
}

func alreadyAdvanced(summary *models.AdvancementSummary) int {
	if summary == nil {
		return 0
	}
	return len(summary.AlreadyAdvanced)
}
