package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

type advancerStub struct {
	req     service.AdvancementRequest
	summary *models.AdvancementSummary
	err     error
}

func (s *advancerStub) Run(ctx context.Context, req service.AdvancementRequest) (*models.AdvancementSummary, error) {
	s.req = req
	return s.summary, s.err
}

type reporterStub struct {
	written *models.AdvancementSummary
}

func (r *reporterStub) WriteAdvancement(path string, summary *models.AdvancementSummary) (string, error) {
	r.written = summary
	return path, nil
}

func Test_parseArgs(t *testing.T) {
	opts, err := parseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, options{}, opts)

	opts, err = parseArgs([]string{"--program", "cs", "--year-level", "2", "--execute", "--json", "--report", "adv.csv"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "cs", opts.programID)
	require.NotNil(t, opts.yearLevel)
	assert.Equal(t, 2, *opts.yearLevel)
	assert.True(t, opts.execute)
	assert.True(t, opts.json)
	assert.Equal(t, "adv.csv", opts.report)

	_, err = parseArgs([]string{"--year-level", "two"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errHelp)

	_, err = parseArgs([]string{"extra"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errHelp)

	_, err = parseArgs([]string{"--report", "adv.txt"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, errHelp))
}

func Test_commandLine_runDryRun(t *testing.T) {
	stub := &advancerStub{summary: &models.AdvancementSummary{
		DryRun:   true,
		Eligible: 1,
		Advanced: 1,
		Skipped:  1,
		Changes:  []models.YearLevelChange{{StudentID: "s1", ProgramID: "cs", From: 2, To: 3}},
	}}
	stdout := &bytes.Buffer{}
	cli := &commandLine{advancement: stub, reports: &reporterStub{}, stdout: stdout, stderr: &bytes.Buffer{}}

	level := 2
	require.NoError(t, cli.run(context.Background(), options{programID: "cs", yearLevel: &level}))

	assert.True(t, stub.req.DryRun)
	assert.Equal(t, "cs", stub.req.ProgramID)
	assert.Equal(t, &level, stub.req.YearLevel)
	assert.Contains(t, stdout.String(), "Would advance:")
	assert.Contains(t, stdout.String(), "s1  cs  2 -> 3")
}

func Test_commandLine_runPartialFailure(t *testing.T) {
	stub := &advancerStub{
		summary: &models.AdvancementSummary{
			Advanced: 1,
			Written:  true,
			Errors:   []models.StudentError{{StudentID: "s2", Error: "stale"}},
		},
		err: appErrors.Clone(appErrors.ErrAdvancementPartial, "1 students could not be advanced"),
	}
	stdout := &bytes.Buffer{}
	rep := &reporterStub{}
	cli := &commandLine{advancement: stub, reports: rep, stdout: stdout, stderr: &bytes.Buffer{}}

	err := cli.run(context.Background(), options{execute: true, json: true, report: "adv.csv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAdvancementPartial))
	assert.False(t, stub.req.DryRun)
	assert.NotNil(t, rep.written)

	var decoded models.AdvancementSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.Len(t, decoded.Errors, 1)
	assert.Equal(t, "s2", decoded.Errors[0].StudentID)
}

func Test_commandLine_runInvalidFilter(t *testing.T) {
	stub := &advancerStub{err: appErrors.Clone(appErrors.ErrInvalidFilter, "year level filter must be 1, 2 or 3")}
	stdout := &bytes.Buffer{}
	cli := &commandLine{advancement: stub, reports: &reporterStub{}, stdout: stdout, stderr: &bytes.Buffer{}}

	level := 4
	err := cli.run(context.Background(), options{yearLevel: &level})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidFilter))
	assert.Empty(t, stdout.String())
}
