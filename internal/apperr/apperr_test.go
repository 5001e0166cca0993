package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New(KindForbidden, "not a participant")
	wrapped := fmt.Errorf("authorize: %w", base)
	if got := KindOf(wrapped); got != KindForbidden {
		t.Fatalf("got %v want KindForbidden", got)
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("something unexpected")); got != KindInternal {
		t.Fatalf("got %v want KindInternal", got)
	}
}

func TestErrorMessage(t *testing.T) {
	e := New(KindClientMalformed, "text exceeds %d chars", 10000)
	if e.Error() != "ClientMalformed: text exceeds 10000 chars" {
		t.Fatalf("got %q", e.Error())
	}
}
