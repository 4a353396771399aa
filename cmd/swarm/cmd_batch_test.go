package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeBatchFile drops a YAML batch file into a temp dir.
func writeBatchFile(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write batch file: %v", err)
	}
	return path
}

const validBatch = `
repository: acme/platform
issues:
  - id: epic
    type: epic
    title: Ship the importer
  - id: schema
    title: Design the schema
    parent: epic
  - id: loader
    title: Build the loader
    parent: epic
    dependsOn: [schema]
`

func TestBatchValidateCmd(t *testing.T) {
	cmd := newRootCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"batch", "validate", "-f", writeBatchFile(t, validBatch)})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "OK: 3 issues for acme/platform") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBatchValidateCmdRejectsBadFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	cmd.SetArgs([]string{"batch", "validate", "-f", writeBatchFile(t, "issues:\n  - title: no id\n")})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid batch file")
	}
}

func TestBatchPlanCmdOrdersDependencies(t *testing.T) {
	cmd := newRootCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"batch", "plan", "-f", writeBatchFile(t, validBatch)})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := out.String()
	// Parent before children, dependency before dependent.
	epicAt := strings.Index(output, "create #1 epic")
	schemaAt := strings.Index(output, "create #2 schema")
	loaderAt := strings.Index(output, "create #3 loader")
	if epicAt < 0 || schemaAt < 0 || loaderAt < 0 || !(epicAt < schemaAt && schemaAt < loaderAt) {
		t.Errorf("creation order wrong:\n%s", output)
	}
	if !strings.Contains(output, "link  #3 blocked by #2") {
		t.Errorf("missing dependency link:\n%s", output)
	}
	if !strings.Contains(output, "summarize #1 children [2 3]") {
		t.Errorf("missing parent summary:\n%s", output)
	}
	if !strings.Contains(output, "3 created, 0 errors") {
		t.Errorf("missing totals:\n%s", output)
	}
}

func TestBatchPlanCmdRequiresFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	cmd.SetArgs([]string{"batch", "plan"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when --file is missing")
	}
}
