package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/noah-isme/course-feedback-api/internal/app"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	"github.com/noah-isme/course-feedback-api/pkg/export"
)

var errHelp = errors.New("help provided")

type transitioner interface {
	CreateNextPeriodEnrollments(ctx context.Context, req service.TransitionRequest) (*models.TransitionSummary, error)
}

type transitionReporter interface {
	WriteTransition(path string, summary *models.TransitionSummary) (string, error)
}

type options struct {
	fromPeriod  string
	toPeriod    string
	advanceYear bool
	execute     bool
	report      string
	json        bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("period-transition", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.fromPeriod, "from-period", "", "Source evaluation period id (required)")
	fs.StringVar(&opts.toPeriod, "to-period", "", "Target evaluation period id (required)")
	fs.BoolVar(&opts.advanceYear, "advance-year", false, "Advance student year levels before copying enrollments")
	fs.BoolVar(&opts.execute, "execute", false, "Write changes; without it the run is a dry run")
	fs.StringVar(&opts.report, "report", "", "Also write the summary to a .csv or .pdf file")
	fs.BoolVar(&opts.json, "json", false, "Print the summary as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  period-transition --from-period ID --to-period ID [--advance-year] [--execute] [--report FILE] [--json]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, errHelp
	}
	if opts.fromPeriod == "" || opts.toPeriod == "" || fs.NArg() > 0 {
		fs.Usage()
		return opts, errHelp
	}
	if opts.report != "" {
		if _, err := export.FormatFromPath(opts.report); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

type commandLine struct {
	transitions transitioner
	reports     transitionReporter
	stdout      io.Writer
	stderr      io.Writer
}

func (cli *commandLine) run(ctx context.Context, opts options) error {
	summary, err := cli.transitions.CreateNextPeriodEnrollments(ctx, service.TransitionRequest{
		FromPeriodID:    opts.fromPeriod,
		ToPeriodID:      opts.toPeriod,
		AutoAdvanceYear: opts.advanceYear,
		DryRun:          !opts.execute,
	})
	if summary == nil {
		return err
	}

	if opts.json {
		if perr := app.WriteJSON(cli.stdout, summary); perr != nil && err == nil {
			err = perr
		}
	} else {
		printSummary(cli.stdout, summary)
	}

	if opts.report != "" {
		path, rerr := cli.reports.WriteTransition(opts.report, summary)
		switch {
		case rerr != nil && err == nil:
			err = rerr
		case rerr != nil:
			fmt.Fprintf(cli.stderr, "report not written: %v\n", rerr)
		default:
			fmt.Fprintf(cli.stderr, "report written to %s\n", path)
		}
	}
	return err
}

func printSummary(w io.Writer, summary *models.TransitionSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	created := "Enrollments created:"
	if summary.DryRun {
		created = "Enrollments to create:"
	}
	fmt.Fprintf(tw, "Mode:\t%s\n", app.ModeBanner(summary.DryRun))
	fmt.Fprintf(tw, "From period:\t%s\n", summary.FromPeriodID)
	fmt.Fprintf(tw, "To period:\t%s\n", summary.ToPeriodID)
	fmt.Fprintf(tw, "New academic year:\t%t\n", summary.NewAcademicYear)
	fmt.Fprintf(tw, "Students affected:\t%d\n", summary.StudentsAffected)
	fmt.Fprintf(tw, "%s\t%d\n", created, summary.EnrollmentsCreated)
	fmt.Fprintf(tw, "Enrollments skipped:\t%d\n", summary.EnrollmentsSkipped)
	if summary.Advancement != nil {
		fmt.Fprintf(tw, "Students advanced:\t%d\n", summary.StudentsAdvanced)
		fmt.Fprintf(tw, "Already advanced:\t%d\n", len(summary.Advancement.AlreadyAdvanced))
		fmt.Fprintf(tw, "Final-year students:\t%d\n", len(summary.Advancement.TerminalStudents))
		fmt.Fprintf(tw, "Advancement errors:\t%d\n", len(summary.Advancement.Errors))
	}
	fmt.Fprintf(tw, "Written:\t%t\n", summary.Written)
	_ = tw.Flush()

	if summary.Advancement != nil {
		for _, e := range summary.Advancement.Errors {
			fmt.Fprintf(w, "  student %s: %s\n", e.StudentID, e.Error)
		}
	}
}
