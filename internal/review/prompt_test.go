package review

import (
	"strings"
	"testing"
)

func TestParseVerdictApprove(t *testing.T) {
	t.Parallel()
	verdict, feedback := ParseVerdict("Looks great.\n<verdict>APPROVE</verdict>")
	if verdict != Approve {
		t.Errorf("verdict = %v, want %v", verdict, Approve)
	}
	if feedback != "" {
		t.Errorf("feedback = %q, want empty on approval", feedback)
	}
}

func TestParseVerdictRequestChanges(t *testing.T) {
	t.Parallel()
	transcript := "Missing test coverage.\n<verdict>REQUEST_CHANGES</verdict>"
	verdict, feedback := ParseVerdict(transcript)
	if verdict != RequestChanges {
		t.Errorf("verdict = %v, want %v", verdict, RequestChanges)
	}
	if feedback != transcript {
		t.Errorf("feedback = %q, want full transcript", feedback)
	}
}

func TestParseVerdictTakesLastMatch(t *testing.T) {
	t.Parallel()
	transcript := "<verdict>REQUEST_CHANGES</verdict> actually wait, <verdict>APPROVE</verdict>"
	verdict, _ := ParseVerdict(transcript)
	if verdict != Approve {
		t.Errorf("verdict = %v, want %v (last match wins)", verdict, Approve)
	}
}

func TestParseVerdictNoMatchTreatedAsRequestChanges(t *testing.T) {
	t.Parallel()
	transcript := "I have some thoughts but forgot the tag."
	verdict, feedback := ParseVerdict(transcript)
	if verdict != RequestChanges {
		t.Errorf("verdict = %v, want %v", verdict, RequestChanges)
	}
	if feedback != transcript {
		t.Errorf("feedback = %q, want full transcript", feedback)
	}
}

func TestPromptsEmbedTheirSlots(t *testing.T) {
	t.Parallel()

	if got := WorkerPrompt("do the thing"); !strings.Contains(got, "do the thing") {
		t.Errorf("WorkerPrompt missing plan content: %q", got)
	}
	if got := ReviewPrompt("the plan", "the diff"); !strings.Contains(got, "the plan") || !strings.Contains(got, "the diff") {
		t.Errorf("ReviewPrompt missing plan or diff: %q", got)
	}
	if got := RevisionPrompt("fix the thing"); !strings.Contains(got, "fix the thing") {
		t.Errorf("RevisionPrompt missing feedback: %q", got)
	}
}
