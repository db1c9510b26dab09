package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aqa-systems/brain/internal/validator"
)

func cmdValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	strict := fs.Bool("strict", false, "treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	files := fs.Args()
	if len(files) == 0 {
		return usageError(errors.New("validate requires at least one plan file (use - for stdin)"))
	}

	mode := validator.ModeDefault
	if *strict {
		mode = validator.ModeStrict
	}
	v := validator.New(mode, nil)

	allValid := true
	for _, path := range files {
		raw, err := readPlanFile(path)
		if err != nil {
			return err
		}

		result := v.ValidateJSON(string(raw))

		status := "valid"
		if !result.OK {
			status = "invalid"
			allValid = false
		}
		fmt.Printf("%s: %s (%d error(s), %d warning(s))\n", path, status, len(result.Errors), len(result.Warnings))
		for _, e := range result.Errors {
			fmt.Printf("  error   %s: %s\n", e.Pointer, e.Message)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  warning %s: %s\n", w.Pointer, w.Message)
		}
	}

	if !allValid {
		return errors.New("one or more plans failed validation")
	}
	return nil
}

func readPlanFile(path string) ([]byte, error) {
	if path == "-" {
		return readAllOrEmpty(os.Stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}
