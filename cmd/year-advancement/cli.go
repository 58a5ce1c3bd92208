package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/noah-isme/course-feedback-api/internal/app"
	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/service"
	"github.com/noah-isme/course-feedback-api/pkg/export"
)

var errHelp = errors.New("help provided")

type advancer interface {
	Run(ctx context.Context, req service.AdvancementRequest) (*models.AdvancementSummary, error)
}

type advancementReporter interface {
	WriteAdvancement(path string, summary *models.AdvancementSummary) (string, error)
}

type options struct {
	programID string
	yearLevel *int
	execute   bool
	report    string
	json      bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("year-advancement", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.programID, "program", "", "Only advance students of this program id")
	fs.Func("year-level", "Only advance students currently in this year level (1-3)", func(value string) error {
		level, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("year level must be a number")
		}
		opts.yearLevel = &level
		return nil
	})
	fs.BoolVar(&opts.execute, "execute", false, "Write changes; without it the run is a dry run")
	fs.StringVar(&opts.report, "report", "", "Also write the summary to a .csv or .pdf file")
	fs.BoolVar(&opts.json, "json", false, "Print the summary as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  year-advancement [--program ID] [--year-level N] [--execute] [--report FILE] [--json]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, errHelp
	}
	if fs.NArg() > 0 {
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
	advancement advancer
	reports     advancementReporter
	stdout      io.Writer
	stderr      io.Writer
}

func (cli *commandLine) run(ctx context.Context, opts options) error {
	summary, err := cli.advancement.Run(ctx, service.AdvancementRequest{
		ProgramID: opts.programID,
		YearLevel: opts.yearLevel,
		DryRun:    !opts.execute,
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
		path, rerr := cli.reports.WriteAdvancement(opts.report, summary)
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

func printSummary(w io.Writer, summary *models.AdvancementSummary) {
	advanced := "Advanced:"
	if summary.DryRun {
		advanced = "Would advance:"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Mode:\t%s\n", app.ModeBanner(summary.DryRun))
	fmt.Fprintf(tw, "Eligible:\t%d\n", summary.Eligible)
	fmt.Fprintf(tw, "%s\t%d\n", advanced, summary.Advanced)
	fmt.Fprintf(tw, "Skipped (final year):\t%d\n", summary.Skipped)
	fmt.Fprintf(tw, "Errors:\t%d\n", len(summary.Errors))
	_ = tw.Flush()

	for _, change := range summary.Changes {
		fmt.Fprintf(w, "  %s  %s  %d -> %d\n", change.StudentID, change.ProgramID, change.From, change.To)
	}
	for _, e := range summary.Errors {
		fmt.Fprintf(w, "  student %s: %s\n", e.StudentID, e.Error)
	}
}
