package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/npiregistry/npiregistry/internal/importer"
)

func findCmd(t *testing.T, root *cobra.Command, path ...string) *cobra.Command {
	t.Helper()
	cmd, rest, err := root.Find(path)
	if err != nil || len(rest) != 0 {
		t.Fatalf("command %v not found: %v", path, err)
	}
	return cmd
}

func TestImportCmd_Subcommands(t *testing.T) {
	root := &cobra.Command{Use: "npi-registry"}
	root.AddCommand(importCmd())

	for _, name := range []string{"build", "transform", "validate", "swap", "discard-old", "rollback", "summary", "status", "run"} {
		findCmd(t, root, "import", name)
	}
}

func TestSwapCmd_Flags(t *testing.T) {
	root := &cobra.Command{Use: "npi-registry"}
	root.AddCommand(importCmd())
	swap := findCmd(t, root, "import", "swap")

	for _, flag := range []string{"keep-old", "grace", "force"} {
		if swap.Flags().Lookup(flag) == nil {
			t.Errorf("swap is missing --%s", flag)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := &cobra.Command{Use: "npi-registry"}
	root.AddCommand(serveCmd(), migrateCmd(), stagingCmd(), importCmd(), updateCmd(), healthCmd(), exportCmd())

	findCmd(t, root, "serve")
	findCmd(t, root, "migrate", "up")
	findCmd(t, root, "migrate", "status")
	findCmd(t, root, "staging", "load")
	findCmd(t, root, "update")
	findCmd(t, root, "health")
	findCmd(t, root, "export", "parquet")
}

func TestUpdateCmd_RequiresFile(t *testing.T) {
	cmd := updateCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a file argument")
	}
}

func TestPrintTransform(t *testing.T) {
	var buf bytes.Buffer
	printTransform(&buf, &importer.TransformResult{
		StagingRows: 8_000_000,
		Providers:   7_900_000,
		Addresses:   15_800_000,
		Duration:    90 * time.Second,
	})

	out := buf.String()
	for _, want := range []string{"8,000,000", "7,900,000", "15,800,000", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	passed := true
	started := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		stage importer.Stage
		run   *importer.Run
		want  []string
	}{
		{
			name:  "no run recorded",
			stage: importer.StageNoShadow,
			want:  []string{"Stage: no_shadow (no import run recorded)"},
		},
		{
			name:  "validated run",
			stage: importer.StageValidated,
			run: &importer.Run{
				ID:               uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
				Stage:            importer.StageValidated,
				ValidationPassed: &passed,
				StartedAt:        started,
				UpdatedAt:        started.Add(time.Hour),
			},
			want: []string{
				"Run:     7d444840-9dc0-11d1-b245-5ffdce74fad2",
				"Stage:   validated",
				"Verdict: validation passed",
				"Started: 2024-07-08T12:00:00Z",
				"Updated: 2024-07-08T13:00:00Z",
			},
		},
		{
			name:  "transformed run",
			stage: importer.StageTransformed,
			run:   &importer.Run{Stage: importer.StageTransformed, StartedAt: started, UpdatedAt: started},
			want:  []string{"Verdict: not validated"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printStatus(&buf, tt.stage, tt.run)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}
