package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/aqa-systems/brain/internal/history"
)

func cmdHistory(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "show":
			return historyShow(ctx, args[1:])
		case "stats":
			return historyStats(ctx, args[1:])
		case "clear":
			return historyClear(ctx, args[1:])
		}
	}
	return historyList(ctx, args)
}

func historyList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 10, "number of executions to show")
	status := fs.String("status", "", "filter by status: success, failure, or error")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	filter := history.ListFilter{Limit: *limit}
	if *status != "" {
		s := history.Status(*status)
		filter.Status = &s
	}

	records, err := bundle.History.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no executions recorded")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-36s %-10s %-19s %4d/%4d steps  %8.0fms  %s\n",
			r.ID, r.Status, r.Timestamp.Format("2006-01-02 15:04:05"), r.PassedSteps, r.TotalSteps, r.DurationMs, r.PlanName)
	}
	return nil
}

func historyShow(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("history show requires an execution id"))
	}
	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	record, err := bundle.History.Get(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("id:            %s\n", record.ID)
	fmt.Printf("plan:          %s (%s)\n", record.PlanName, record.PlanFile)
	fmt.Printf("status:        %s\n", record.Status)
	fmt.Printf("timestamp:     %s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Printf("duration:      %.0fms\n", record.DurationMs)
	fmt.Printf("steps:         %d total, %d passed, %d failed, %d skipped\n",
		record.TotalSteps, record.PassedSteps, record.FailedSteps, record.SkippedSteps)
	if len(record.RunnerReport) > 0 {
		fmt.Printf("report:        %s\n", string(record.RunnerReport))
	}
	return nil
}

func historyStats(ctx context.Context, args []string) error {
	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	stats, err := bundle.History.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("backend:  %s\n", stats.Backend)
	fmt.Printf("total:    %d (success=%d failure=%d error=%d)\n", stats.Total, stats.SuccessCount, stats.FailureCount, stats.ErrorCount)
	if stats.Oldest != nil {
		fmt.Printf("oldest:   %s\n", stats.Oldest.Format(time.RFC3339))
	}
	if stats.Newest != nil {
		fmt.Printf("newest:   %s\n", stats.Newest.Format(time.RFC3339))
	}
	return nil
}

func historyClear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history clear", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "skip the confirmation prompt")
	fs.BoolVar(force, "f", false, "shorthand for --force")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if !*force {
		return errors.New("refusing to clear history without --force")
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	n, err := bundle.History.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d execution record(s)\n", n)
	return nil
}
