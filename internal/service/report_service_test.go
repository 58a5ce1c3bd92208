package service

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

func newReportServiceForTest(t *testing.T) (*ReportService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	return NewReportService(store, zap.NewNop()), dir
}

func sampleTransitionSummary() *models.TransitionSummary {
	return &models.TransitionSummary{
		FromPeriodID:       "spring",
		ToPeriodID:         "next",
		DryRun:             true,
		StudentsAffected:   2,
		EnrollmentsCreated: 2,
		EnrollmentsSkipped: 1,
		Staged: []models.StagedEnrollment{
			{StudentID: "s1", ClassSectionID: "c1", SourceEnrollmentID: "e1"},
			{StudentID: "s2", ClassSectionID: "c1", SourceEnrollmentID: "e3"},
		},
	}
}

func TestReportServiceWriteTransitionCSV(t *testing.T) {
	svc, dir := newReportServiceForTest(t)

	path, err := svc.WriteTransition("transition.csv", sampleTransitionSummary())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "transition.csv"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"student_id", "class_section_id", "source_enrollment_id", "to_period_id"},
		{"s1", "c1", "e1", "next"},
		{"s2", "c1", "e3", "next"},
	}, records)
}

func TestReportServiceWriteAdvancementPDF(t *testing.T) {
	svc, _ := newReportServiceForTest(t)
	summary := &models.AdvancementSummary{
		Advanced: 1,
		Changes:  []models.YearLevelChange{{StudentID: "s1", ProgramID: "cs", From: 1, To: 2}},
	}

	path, err := svc.WriteAdvancement("out/advancement.pdf", summary)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}

func TestReportServiceRejectsUnknownExtension(t *testing.T) {
	svc, dir := newReportServiceForTest(t)

	_, err := svc.WriteTransition("transition.xlsx", sampleTransitionSummary())
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "transition.xlsx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReportServiceRequiresSummary(t *testing.T) {
	svc, _ := newReportServiceForTest(t)

	_, err := svc.WriteTransition("a.csv", nil)
	assert.Error(t, err)
	_, err = svc.WriteAdvancement("a.csv", nil)
	assert.Error(t, err)
}

func TestAdvancementDatasetListsFailures(t *testing.T) {
	summary := &models.AdvancementSummary{
		Changes: []models.YearLevelChange{
			{StudentID: "s1", ProgramID: "cs", From: 1, To: 2},
			{StudentID: "s2", ProgramID: "cs", From: 2, To: 3},
		},
		Errors: []models.StudentError{
			{StudentID: "s2", Error: "deadlock"},
			{StudentID: "s9", Error: "invalid year level 0"},
		},
	}

	data := AdvancementDataset(summary)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "", data.Rows[0]["error"])
	assert.Equal(t, "deadlock", data.Rows[1]["error"])
	assert.Equal(t, "s9", data.Rows[2]["student_id"])
	assert.True(t, strings.HasPrefix(data.Title, "Year advancement"))
}
