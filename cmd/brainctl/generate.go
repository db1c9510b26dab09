package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/openapi"
)

func cmdGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	requirement := fs.String("requirement", "", "natural-language description of what to test")
	swagger := fs.String("swagger", "", "OpenAPI/Swagger file to derive a requirement and base URL from")
	baseURL := fs.String("base-url", "", "API base URL (overrides the OpenAPI document's server, if any)")
	output := fs.String("output", "", "write the generated plan here instead of stdout")
	skipCache := fs.Bool("skip-cache", false, "bypass the plan cache for this generation")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	if *requirement == "" && *swagger == "" {
		return usageError(errors.New("generate requires --requirement or --swagger"))
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	req := *requirement
	url := *baseURL
	if *swagger != "" {
		raw, err := os.ReadFile(*swagger)
		if err != nil {
			return fmt.Errorf("read %s: %w", *swagger, err)
		}
		spec, err := openapi.Parse(raw, openapi.DefaultParseOptions())
		if err != nil {
			return fmt.Errorf("parse openapi spec: %w", err)
		}
		if req == "" {
			req = openapi.SpecToRequirementText(spec)
		}
		if url == "" {
			url = spec.BaseURL
		}
	}

	opts := generator.DefaultOptions()
	opts.SkipCache = *skipCache

	plan, meta, err := bundle.Generator.Generate(ctx, req, url, opts)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}

	if *output != "" {
		if err := os.WriteFile(*output, encoded, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *output, err)
		}
		fmt.Printf("wrote %s (%d steps, provider=%s model=%s cached=%t attempts=%d)\n",
			*output, len(plan.Steps), meta.Provider, meta.Model, meta.Cached, meta.Attempts)
		return nil
	}

	fmt.Println(string(encoded))
	return nil
}
