package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-churn/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestTrainInspectScoreRuns(t *testing.T) {
	dir := t.TempDir()
	records, labels := testutil.Dataset(300, 17)
	dataPath := testutil.WriteCSV(t, dir, records, labels)
	artifactPath := filepath.Join(dir, "artifacts", "model.json")

	t.Setenv("CHURN_CONFIG", "")
	t.Setenv("CHURN_ARTIFACT_PATH", artifactPath)
	t.Setenv("CHURN_RUNS_DB", filepath.Join(dir, "artifacts", "runs.db"))
	t.Setenv("CHURN_LOG_LEVEL", "error")

	out, err := execute(t, "train", "--data", dataPath)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(out, "Model accuracy: ") || !strings.Contains(out, artifactPath) {
		t.Fatalf("unexpected train output %q", out)
	}

	out, err = execute(t, "inspect", "--top", "3")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var info struct {
		ModelID    string `json:"model_id"`
		TopWeights []struct {
			Feature string `json:"feature"`
		} `json:"top_weights"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode inspect output: %v", err)
	}
	if info.ModelID == "" || len(info.TopWeights) != 3 {
		t.Fatalf("unexpected inspection %+v", info)
	}

	out, err = execute(t, "score", dataPath)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse scores: %v", err)
	}
	if len(rows) != 301 || rows[0][0] != "customerID" || rows[1][0] != "0000-TEST" {
		t.Fatalf("unexpected score output: %d rows, first %v", len(rows), rows[0])
	}

	out, err = execute(t, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, info.ModelID) {
		t.Fatalf("run ledger does not list model %s:\n%s", info.ModelID, out)
	}
}

func TestScoreWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	records, labels := testutil.Dataset(120, 4)
	dataPath := testutil.WriteCSV(t, dir, records, labels)

	t.Setenv("CHURN_CONFIG", "")
	t.Setenv("CHURN_ARTIFACT_PATH", filepath.Join(dir, "model.json"))
	t.Setenv("CHURN_RUNS_DB", filepath.Join(dir, "runs.db"))
	t.Setenv("CHURN_LOG_LEVEL", "error")

	if _, err := execute(t, "train", "--data", dataPath); err != nil {
		t.Fatalf("train: %v", err)
	}

	outPath := filepath.Join(dir, "scores.csv")
	out, err := execute(t, "score", dataPath, "--out", outPath)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out != "" {
		t.Fatalf("expected nothing on stdout, got %q", out)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open scores: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse scores: %v", err)
	}
	if len(rows) != 121 || rows[0][2] != "probability" {
		t.Fatalf("unexpected score file: %d rows, header %v", len(rows), rows[0])
	}

	if _, err := execute(t, "score", dataPath, "--out", filepath.Join(dir, "missing", "scores.csv")); err == nil {
		t.Fatalf("expected an unwritable output path to fail")
	}
}

func TestScoreWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	records, labels := testutil.Dataset(10, 1)
	dataPath := testutil.WriteCSV(t, dir, records, labels)
	t.Setenv("CHURN_CONFIG", "")
	t.Setenv("CHURN_ARTIFACT_PATH", filepath.Join(dir, "missing.json"))

	if _, err := execute(t, "score", dataPath); err == nil {
		t.Fatalf("expected missing artifact error")
	}
}
