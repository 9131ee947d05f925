package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFakeRunExtractsTranscript(t *testing.T) {
	t.Parallel()
	fake := &Fake{
		Responses: []FakeResponse{
			{
				Lines: []string{
					`{"type":"system","subtype":"init"}`,
					`{"type":"assistant","message":{"content":[{"type":"text","text":"hello "}]}}`,
					`{"type":"assistant","message":{"content":[{"type":"text","text":"world"}]}}`,
					`{"type":"result","subtype":"success"}`,
				},
				ExitCode: 0,
			},
		},
	}

	logPath := filepath.Join(t.TempDir(), "run.jsonl")
	result, err := fake.Run(context.Background(), Config{Prompt: "do it", LogPath: logPath})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", result.Transcript, "hello world")
	}

	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(logged), `"subtype":"init"`) {
		t.Errorf("log file missing raw system line: %q", logged)
	}
}

func TestFakeRunIgnoresMalformedLines(t *testing.T) {
	t.Parallel()
	fake := &Fake{
		Responses: []FakeResponse{
			{
				Lines: []string{
					`not json at all`,
					`{"type":"assistant","message":{"content":[{"type":"text","text":"ok"}]}}`,
				},
				ExitCode: 0,
			},
		},
	}

	result, err := fake.Run(context.Background(), Config{Prompt: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Transcript != "ok" {
		t.Errorf("Transcript = %q, want %q", result.Transcript, "ok")
	}
}

func TestFakeRunNonZeroExitCode(t *testing.T) {
	t.Parallel()
	fake := &Fake{
		Responses: []FakeResponse{
			{Lines: []string{`{"type":"result","subtype":"error_max_turns"}`}, ExitCode: 1},
		},
	}

	result, err := fake.Run(context.Background(), Config{Prompt: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
}

func TestFakeRunReusesLastResponseBeyondScriptedCalls(t *testing.T) {
	t.Parallel()
	fake := &Fake{
		Responses: []FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"first"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"second"}]}}`}, ExitCode: 0},
		},
	}

	for i, want := range []string{"first", "second", "second", "second"} {
		result, err := fake.Run(context.Background(), Config{Prompt: "x"})
		if err != nil {
			t.Fatalf("Run #%d: %v", i, err)
		}
		if result.Transcript != want {
			t.Errorf("Run #%d Transcript = %q, want %q", i, result.Transcript, want)
		}
	}

	if len(fake.Prompts) != 4 {
		t.Errorf("Prompts recorded = %d, want 4", len(fake.Prompts))
	}
}

func TestScanStreamJSONHandlesToolEvents(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"1","name":"Bash"}]}}`,
		`{"type":"tool","subtype":"result"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`,
	}, "\n")

	transcript, err := scanStreamJSON(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("scanStreamJSON: %v", err)
	}
	if transcript != "done" {
		t.Errorf("transcript = %q, want %q", transcript, "done")
	}
}
