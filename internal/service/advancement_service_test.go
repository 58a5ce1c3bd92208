package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type fakeStudentStore struct {
	students []*models.Student
	failing  map[string]error
	recorded map[string]map[string]bool
	updates  int
	filter   models.StudentFilter
}

func newFakeStudentStore(students ...models.Student) *fakeStudentStore {
	store := &fakeStudentStore{failing: map[string]error{}, recorded: map[string]map[string]bool{}}
	for i := range students {
		s := students[i]
		s.IsActive = true
		store.students = append(store.students, &s)
	}
	return store
}

func (f *fakeStudentStore) ListForAdvancement(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	f.filter = filter
	var ids map[string]bool
	if filter.StudentIDs != nil {
		ids = make(map[string]bool, len(filter.StudentIDs))
		for _, id := range filter.StudentIDs {
			ids[id] = true
		}
	}
	var result []models.Student
	for _, s := range f.students {
		if !s.IsActive {
			continue
		}
		if filter.ProgramID != "" && s.ProgramID != filter.ProgramID {
			continue
		}
		if filter.YearLevel != nil && s.YearLevel != *filter.YearLevel {
			continue
		}
		if ids != nil && !ids[s.ID] {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

func (f *fakeStudentStore) AdvanceYearLevel(ctx context.Context, id string, from, to int) error {
	if err, ok := f.failing[id]; ok {
		return err
	}
	for _, s := range f.students {
		if s.ID == id {
			if s.YearLevel != from {
				return repository.ErrStaleStudent
			}
			s.YearLevel = to
			f.updates++
			return nil
		}
	}
	return repository.ErrStaleStudent
}

func (f *fakeStudentStore) ListAdvancedForPeriod(ctx context.Context, periodID string) ([]string, error) {
	var ids []string
	for id := range f.recorded[periodID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStudentStore) AdvanceYearLevelForPeriod(ctx context.Context, id string, from, to int, periodID string) error {
	if f.recorded[periodID][id] {
		return repository.ErrAlreadyAdvanced
	}
	if err := f.AdvanceYearLevel(ctx, id, from, to); err != nil {
		return err
	}
	if f.recorded[periodID] == nil {
		f.recorded[periodID] = map[string]bool{}
	}
	f.recorded[periodID][id] = true
	return nil
}

func (f *fakeStudentStore) yearOf(id string) int {
	for _, s := range f.students {
		if s.ID == id {
			return s.YearLevel
		}
	}
	return 0
}

type fakeProgramReader struct {
	ids map[string]bool
	err error
}

func (f fakeProgramReader) Exists(ctx context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.ids[id], nil
}

func intPtr(v int) *int {
	return &v
}

func seededStudents() *fakeStudentStore {
	return newFakeStudentStore(
		models.Student{ID: "s1", ProgramID: "cs", YearLevel: 1},
		models.Student{ID: "s2", ProgramID: "cs", YearLevel: 3},
		models.Student{ID: "s3", ProgramID: "cs", YearLevel: 4},
		models.Student{ID: "s4", ProgramID: "math", YearLevel: 2},
	)
}

func newAdvancementServiceForTest(store *fakeStudentStore) *AdvancementService {
	programs := fakeProgramReader{ids: map[string]bool{"cs": true, "math": true}}
	return NewAdvancementService(store, programs, nil, nil, zap.NewNop())
}

func TestAdvancementServiceExecute(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{})
	require.NoError(t, err)

	assert.False(t, summary.DryRun)
	assert.True(t, summary.Written)
	assert.Equal(t, 3, summary.Eligible)
	assert.Equal(t, 3, summary.Advanced)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"s3"}, summary.TerminalStudents)
	assert.Equal(t, 2, store.yearOf("s1"))
	assert.Equal(t, 4, store.yearOf("s2"))
	assert.Equal(t, 4, store.yearOf("s3"))
	assert.Equal(t, 3, store.yearOf("s4"))
}

func TestAdvancementServiceDryRunDoesNotMutate(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{ProgramID: "cs", DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.False(t, summary.Written)
	assert.Equal(t, 0, store.updates)
	assert.Equal(t, 2, summary.Advanced)
	require.Len(t, summary.Changes, 2)
	for _, change := range summary.Changes {
		assert.Equal(t, change.From+1, change.To)
		assert.Equal(t, change.From, store.yearOf(change.StudentID))
	}
}

func TestAdvancementServiceDryRunMatchesExecute(t *testing.T) {
	dry, err := newAdvancementServiceForTest(seededStudents()).Run(context.Background(), AdvancementRequest{DryRun: true})
	require.NoError(t, err)
	exec, err := newAdvancementServiceForTest(seededStudents()).Run(context.Background(), AdvancementRequest{})
	require.NoError(t, err)

	assert.Equal(t, dry.Changes, exec.Changes)
	assert.Equal(t, dry.Advanced, exec.Advanced)
	assert.Equal(t, dry.Skipped, exec.Skipped)
}

func TestAdvancementServiceFinalYearOnly(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{StudentIDs: []string{"s3"}})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Eligible)
	assert.Equal(t, 1, summary.Skipped)
	assert.False(t, summary.Written)
	assert.Empty(t, summary.Changes)
	assert.Equal(t, 4, store.yearOf("s3"))
}

func TestAdvancementServiceEmptyStudentSet(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{StudentIDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Eligible)
	assert.Equal(t, 0, store.updates)
	assert.NotNil(t, store.filter.StudentIDs)
}

func TestAdvancementServiceFilters(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{ProgramID: "cs", YearLevel: intPtr(3), DryRun: true})
	require.NoError(t, err)
	require.Len(t, summary.Changes, 1)
	assert.Equal(t, models.YearLevelChange{StudentID: "s2", ProgramID: "cs", From: 3, To: 4}, summary.Changes[0])
}

func TestAdvancementServiceInvalidFilter(t *testing.T) {
	for _, level := range []int{0, 4, 7} {
		store := seededStudents()
		svc := newAdvancementServiceForTest(store)

		summary, err := svc.Run(context.Background(), AdvancementRequest{YearLevel: intPtr(level)})
		require.Error(t, err)
		assert.Nil(t, summary)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidFilter), "year level %d", level)
		assert.Equal(t, 0, store.updates)
	}
}

func TestAdvancementServiceUnknownProgram(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)

	_, err := svc.Run(context.Background(), AdvancementRequest{ProgramID: "history"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProgramNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, store.updates)
}

func TestAdvancementServiceProgramLookupFailure(t *testing.T) {
	svc := NewAdvancementService(seededStudents(), fakeProgramReader{err: errors.New("db down")}, nil, nil, nil)

	_, err := svc.Run(context.Background(), AdvancementRequest{ProgramID: "cs"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestAdvancementServicePartialFailure(t *testing.T) {
	store := seededStudents()
	store.failing["s2"] = errors.New("deadlock detected")
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAdvancementPartial))
	require.NotNil(t, summary)

	assert.Equal(t, 2, summary.Advanced)
	assert.True(t, summary.Written)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "s2", summary.Errors[0].StudentID)
	assert.Equal(t, 2, store.yearOf("s1"))
	assert.Equal(t, 3, store.yearOf("s2"))
	assert.Equal(t, 3, store.yearOf("s4"))
}

func TestAdvancementServiceInvalidStoredYear(t *testing.T) {
	store := newFakeStudentStore(models.Student{ID: "bad", ProgramID: "cs", YearLevel: 0})
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{DryRun: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAdvancementPartial))
	assert.Equal(t, 0, summary.Eligible)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "bad", summary.Errors[0].StudentID)
}

func TestAdvancementServicePeriodScopedRunAdvancesOnce(t *testing.T) {
	store := seededStudents()
	svc := newAdvancementServiceForTest(store)
	req := AdvancementRequest{PeriodID: "next", StudentIDs: []string{"s1", "s2", "s3"}}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Advanced)
	assert.Empty(t, first.AlreadyAdvanced)

	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Advanced)
	assert.False(t, second.Written)
	assert.ElementsMatch(t, []string{"s1", "s2"}, second.AlreadyAdvanced)
	assert.Equal(t, 2, store.yearOf("s1"))
	assert.Equal(t, 4, store.yearOf("s2"))

	dry, err := svc.Run(context.Background(), AdvancementRequest{PeriodID: "next", StudentIDs: []string{"s1", "s2"}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, dry.Advanced)
	assert.Len(t, dry.AlreadyAdvanced, 2)
}

func TestAdvancementServiceRecordedElsewhereStillAdvances(t *testing.T) {
	store := seededStudents()
	store.recorded["other"] = map[string]bool{"s1": true}
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{PeriodID: "next", StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Advanced)
	assert.Equal(t, 2, store.yearOf("s1"))
}

func TestAdvancementServiceConcurrentRecordCountsAsAlreadyAdvanced(t *testing.T) {
	store := seededStudents()
	store.failing["s1"] = repository.ErrAlreadyAdvanced
	svc := newAdvancementServiceForTest(store)

	summary, err := svc.Run(context.Background(), AdvancementRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Eligible)
	assert.Empty(t, summary.Changes)
	assert.Equal(t, []string{"s1"}, summary.AlreadyAdvanced)
	assert.Equal(t, 1, store.yearOf("s1"))
}
