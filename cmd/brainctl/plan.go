package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/internal/versionstore"
)

func cmdPlan(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("plan requires a subcommand: list, versions, diff, save, show, restore"))
	}

	switch args[0] {
	case "list":
		return planList(ctx, args[1:])
	case "versions":
		return planVersions(ctx, args[1:])
	case "diff":
		return planDiff(ctx, args[1:])
	case "save":
		return planSave(ctx, args[1:])
	case "show":
		return planShow(ctx, args[1:])
	case "restore":
		return planRestore(ctx, args[1:])
	default:
		return usageError(fmt.Errorf("unknown plan subcommand %q", args[0]))
	}
}

func planList(ctx context.Context, args []string) error {
	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	names, err := bundle.Versions.ListPlans(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no versioned plans")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func planVersions(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("plan versions requires a plan name"))
	}
	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	versions, err := bundle.Versions.ListVersions(ctx, args[0])
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Printf("v%-4d %-19s %-8s %s\n", v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Source, v.Description)
	}
	return nil
}

func planDiff(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError(errors.New("plan diff requires a plan name and at least one version"))
	}
	name := args[0]
	a, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[1], err)
	}
	b := 0 // 0 means "current"
	if len(args) >= 3 {
		b, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[2], err)
		}
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	diff, err := bundle.Versions.Diff(ctx, name, a, b)
	if err != nil {
		return err
	}
	printDiff(diff)
	return nil
}

func printDiff(diff versionstore.PlanDiff) {
	fmt.Printf("diff: %s v%d -> v%d\n", diff.PlanName, diff.From, diff.To)
	if !diff.HasChanges {
		fmt.Println("no differences")
		return
	}
	fmt.Println(diff.Summary)
	for _, s := range diff.StepsAdded {
		fmt.Printf("  + %s\n", s.ID)
	}
	for _, s := range diff.StepsRemoved {
		fmt.Printf("  - %s\n", s.ID)
	}
	for _, c := range diff.StepsModified {
		fmt.Printf("  ~ %s\n", c.ID)
	}
}

func planSave(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan save", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "plan name to save the version under (required)")
	description := fs.String("description", "", "version description")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	positional := fs.Args()
	if len(positional) == 0 {
		return usageError(errors.New("plan save requires a plan file"))
	}
	if *name == "" {
		return usageError(errors.New("plan save requires --name"))
	}

	raw, err := readPlanFile(positional[0])
	if err != nil {
		return err
	}
	result := validator.New(validator.ModeDefault, nil).ValidateJSON(string(raw))
	if !result.OK || result.Plan == nil {
		return fmt.Errorf("%s: invalid plan", positional[0])
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	version, err := bundle.Versions.Save(ctx, *name, *result.Plan, versionstore.SourceManual, *description, nil, "", "")
	if err != nil {
		return err
	}
	fmt.Printf("saved %s v%d\n", version.PlanName, version.Version)
	return nil
}

func planShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan show", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	version := fs.Int("version", 0, "version number to show (0 means current)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	positional := fs.Args()
	if len(positional) == 0 {
		return usageError(errors.New("plan show requires a plan name"))
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	pv, err := bundle.Versions.GetVersion(ctx, positional[0], *version)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(pv.Plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func planRestore(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError(errors.New("plan restore requires a plan name and version"))
	}
	version, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[1], err)
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	restored, err := bundle.Versions.Rollback(ctx, args[0], version, fmt.Sprintf("rollback to v%d", version))
	if err != nil {
		return err
	}
	fmt.Printf("restored %s to v%d (now v%d)\n", restored.PlanName, version, restored.Version)
	return nil
}
