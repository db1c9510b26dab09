package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPlanJSON = `{
  "spec_version": "0.1",
  "meta": {"name": "sample"},
  "config": {"base_url": "http://api.example.com"},
  "steps": [
    {"id": "a", "action": "http_request", "params": {"method": "GET", "path": "/"}}
  ]
}`

const invalidPlanJSON = `{"spec_version": "0.1"}`

func setFileEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BRAIN_ENV", "testing")
	t.Setenv("AQA_STORAGE_BACKEND", "filetree")
	t.Setenv("AQA_STORAGE_PATH", filepath.Join(dir, "storage"))
	t.Setenv("BRAIN_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("BRAIN_HISTORY_DIR", filepath.Join(dir, "history"))
	t.Setenv("AQA_LLM_MODE", "mock")
	t.Setenv("DATABASE_URL", "")
	return dir
}

func writePlanFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	if err := run(context.Background(), nil); err != nil {
		t.Fatalf("expected no error with no args, got %v", err)
	}
}

func TestReadAllOrEmptyNilReader(t *testing.T) {
	data, err := readAllOrEmpty(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil, got %v", data)
	}
}

func TestReadPlanFile(t *testing.T) {
	dir := t.TempDir()
	path := writePlanFile(t, dir, "plan.json", validPlanJSON)

	raw, err := readPlanFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), "sample") {
		t.Fatalf("unexpected content: %s", raw)
	}

	if _, err := readPlanFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestCmdValidateAcceptsValidPlan(t *testing.T) {
	dir := t.TempDir()
	path := writePlanFile(t, dir, "plan.json", validPlanJSON)

	if err := cmdValidate(context.Background(), []string{path}); err != nil {
		t.Fatalf("expected a valid plan to pass, got %v", err)
	}
}

func TestCmdValidateRejectsInvalidPlan(t *testing.T) {
	dir := t.TempDir()
	path := writePlanFile(t, dir, "plan.json", invalidPlanJSON)

	if err := cmdValidate(context.Background(), []string{path}); err == nil {
		t.Fatal("expected an invalid plan to fail")
	}
}

func TestCmdValidateRequiresAFile(t *testing.T) {
	if err := cmdValidate(context.Background(), nil); err == nil {
		t.Fatal("expected an error when no file is given")
	}
}

func TestCmdHistoryClearRefusesWithoutForce(t *testing.T) {
	setFileEnv(t)
	if err := cmdHistory(context.Background(), []string{"clear"}); err == nil {
		t.Fatal("expected clear to refuse without --force")
	}
}

func TestCmdHistoryClearWithForce(t *testing.T) {
	setFileEnv(t)
	if err := cmdHistory(context.Background(), []string{"clear", "--force"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCmdPlanSaveAndShow(t *testing.T) {
	dir := setFileEnv(t)
	planPath := writePlanFile(t, dir, "plan.json", validPlanJSON)

	if err := cmdPlan(context.Background(), []string{"save", "--name", "checkout", planPath}); err != nil {
		t.Fatalf("plan save failed: %v", err)
	}
	if err := cmdPlan(context.Background(), []string{"show", "checkout"}); err != nil {
		t.Fatalf("plan show failed: %v", err)
	}
	if err := cmdPlan(context.Background(), []string{"versions", "checkout"}); err != nil {
		t.Fatalf("plan versions failed: %v", err)
	}
}

func TestCmdPlanRequiresSubcommand(t *testing.T) {
	if err := cmdPlan(context.Background(), nil); err == nil {
		t.Fatal("expected an error when no subcommand is given")
	}
}

func TestCmdGenerateRequiresInput(t *testing.T) {
	if err := cmdGenerate(context.Background(), nil); err == nil {
		t.Fatal("expected an error when neither --requirement nor --swagger is given")
	}
}
