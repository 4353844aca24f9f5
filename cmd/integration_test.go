package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags clears values and Changed state left by an earlier invocation.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd executes the root command with args and returns stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// mustRun is execCmd that fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

// isolate points HOME and provider variables at a clean test environment.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{"LLM_PROVIDER", "LLM_MODEL", "GROQ_API_KEY", "OPENAI_API_KEY", "OLLAMA_BASE_URL", "DATACREW_PROVIDER"} {
		t.Setenv(env, "")
	}
	return home
}

func writeEmployees(t *testing.T, path string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("age,income,department\n")
	depts := []string{"Sales", "Engineering", "HR"}
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "%d,%d,%s\n", 22+i, 40000+i*900, depts[i%3])
	}
	b.WriteString("22,40000,Sales\n")
	b.WriteString("60,,\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
}

// fakeOllama answers /api/chat with a canned reply chosen by the system prompt.
func fakeOllama(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		system := req.Messages[0].Content
		reply := "1. Income rises with age\n2. Departments are balanced"
		switch {
		case strings.Contains(system, "gatekeeper"):
			reply = "Decision: YES\nReason: enough rows and mixed types"
		case strings.Contains(system, "precise data analyst"):
			reply = "- X: age | Y: income | Type: scatter"
		case strings.Contains(system, "visualization engineer"):
			reply = "```python\nimport pandas as pd\n```"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3",
			"message":           map[string]string{"role": "assistant", "content": reply},
			"done":              true,
			"prompt_eval_count": 40,
			"eval_count":        12,
		})
	})
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String(), &calls
}

func TestCLI_RunWithOllama(t *testing.T) {
	home := isolate(t)
	url, calls := fakeOllama(t)
	t.Setenv("OLLAMA_BASE_URL", url)

	input := filepath.Join(home, "employees.csv")
	writeEmployees(t, input)
	outDir := filepath.Join(home, "outputs")
	cleaned := filepath.Join(home, "data", "cleaned_csv.csv")

	out := mustRun(t, "run", input, "--provider", "ollama", "-o", outDir, "--cleaned", cleaned, "--codegen", "--parallel")
	if !strings.Contains(out, "✓ Report:") {
		t.Fatalf("expected report lines, got:\n%s", out)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 provider calls, got %d", got)
	}
	for _, name := range []string{"report.html", "report.md", "bundle.json", "op.py", "chart_01_distribution.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(cleaned)
	if err != nil {
		t.Fatalf("read cleaned: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 32 {
		t.Fatalf("expected header + 31 rows, got %d lines", n)
	}

	hist := mustRun(t, "history", "-n", "5")
	if !strings.Contains(hist, "employees.csv") || !strings.Contains(hist, "ollama") {
		t.Fatalf("history does not list the run:\n%s", hist)
	}
}

func TestCLI_RunMissingFileIsFatal(t *testing.T) {
	home := isolate(t)
	_, err := execCmd(t, "run", filepath.Join(home, "nope.csv"), "--provider", "ollama", "-o", filepath.Join(home, "out"), "--no-ledger")
	if err == nil || !strings.Contains(err.Error(), "load dataset") {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(home, "out", "report.html")); statErr == nil {
		t.Fatalf("no report expected after a load failure")
	}
}

func TestCLI_RunRequiresCredential(t *testing.T) {
	home := isolate(t)
	input := filepath.Join(home, "employees.csv")
	writeEmployees(t, input)
	_, err := execCmd(t, "run", input, "--provider", "groq")
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY is not set") {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestCLI_DryRunPrintsPrompts(t *testing.T) {
	home := isolate(t)
	input := filepath.Join(home, "employees.csv")
	writeEmployees(t, input)
	out := mustRun(t, "run", input, "--provider", "groq", "--dry-run", "--objective", "find pay drivers")
	for _, want := range []string{"## validate", "## relate", "## insight", "[SCHEMA]", "- department: categorical", "Objective: find pay drivers"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dry run output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "## codegen") {
		t.Fatalf("codegen prompt shown without --codegen")
	}
	if strings.Contains(out, "40900") {
		t.Fatalf("prompts must not contain row values")
	}
}

func TestCLI_Clean(t *testing.T) {
	home := isolate(t)
	input := filepath.Join(home, "employees.csv")
	writeEmployees(t, input)
	dst := filepath.Join(home, "clean", "out.csv")
	out := mustRun(t, "clean", input, "-o", dst)
	if !strings.Contains(out, "Removed 1 exact duplicate row") {
		t.Fatalf("unexpected clean log:\n%s", out)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.Contains(string(data), ",,") {
		t.Fatalf("cleaned output still has missing cells:\n%s", data)
	}
}

func TestCLI_RunBatchSeparatesOutputs(t *testing.T) {
	home := isolate(t)
	url, _ := fakeOllama(t)
	t.Setenv("OLLAMA_BASE_URL", url)
	writeEmployees(t, filepath.Join(home, "d1", "staff.csv"))
	writeEmployees(t, filepath.Join(home, "d2", "staff.csv"))
	outDir := filepath.Join(home, "outputs")

	mustRun(t, "run-batch", filepath.Join(home, "d*", "staff.csv"), "--provider", "ollama", "-o", outDir, "--no-ledger")
	for _, dir := range []string{"staff", "staff__2"} {
		if _, err := os.Stat(filepath.Join(outDir, dir, "report.html")); err != nil {
			t.Fatalf("missing report for %s: %v", dir, err)
		}
		if _, err := os.Stat(filepath.Join(outDir, dir, "cleaned_csv.csv")); err != nil {
			t.Fatalf("missing cleaned csv for %s: %v", dir, err)
		}
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	isolate(t)
	mustRun(t, "config", "set", "provider", "local")
	mustRun(t, "config", "set", "stage_retries", "2")
	mustRun(t, "config", "set", "groq_api_key", "gsk_1234567890")
	if _, err := execCmd(t, "config", "set", "provider", "nope"); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	cfg = nil
	c, err := requireConfig()
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if c.Provider != "ollama" || c.StageRetries != 2 {
		t.Fatalf("unexpected config after set: provider=%s retries=%d", c.Provider, c.StageRetries)
	}
	out := mustRun(t, "config", "show")
	for _, want := range []string{"provider: ollama\n", "model: llama3\n", "stage_retries: 2\n", "groq_api_key: gsk****890\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ModelsAndProfile(t *testing.T) {
	home := isolate(t)
	out := mustRun(t, "models", "show", "--provider", "groq")
	if !strings.Contains(out, "llama-3.3-70b-versatile") || strings.Contains(out, "gpt-4o-mini") {
		t.Fatalf("unexpected models output:\n%s", out)
	}
	if _, err := execCmd(t, "models", "show", "--provider", "nope"); err == nil {
		t.Fatalf("expected unknown provider error")
	}

	input := filepath.Join(home, "employees.csv")
	writeEmployees(t, input)
	md := mustRun(t, "profile", input)
	if !strings.Contains(md, "income") {
		t.Fatalf("profile output missing columns:\n%s", md)
	}
}
