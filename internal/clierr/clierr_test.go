package clierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := NotFound("plan %d not found", 7)
	kind, ok := KindOf(err)
	if !ok || kind != NotFoundKind {
		t.Fatalf("KindOf(%v) = (%v, %v), want (%v, true)", err, kind, ok, NotFoundKind)
	}

	wrapped := fmt.Errorf("listing plans: %w", err)
	kind, ok = KindOf(wrapped)
	if !ok || kind != NotFoundKind {
		t.Fatalf("KindOf(wrapped) = (%v, %v), want (%v, true)", kind, ok, NotFoundKind)
	}

	if kind, ok := KindOf(errors.New("plain error")); ok {
		t.Fatalf("KindOf(plain error) = (%v, %v), want ok=false", kind, ok)
	}
}

func TestWithHint(t *testing.T) {
	t.Parallel()

	err := InputError("missing --project").WithHint("pass --project <path>")
	if err.Hint != "pass --project <path>" {
		t.Fatalf("Hint = %q, want %q", err.Hint, "pass --project <path>")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Kind]int{
		Input:        400,
		Dependency:   400,
		State:        400,
		NotFoundKind: 404,
		VCS:          500,
		Agent:        500,
		IO:           500,
		Config:       500,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}
