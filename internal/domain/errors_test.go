package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"bare sentinel", ErrDecisionFailed, CodeDecisionFailed},
		{"domain error", NewDomainError("turn.decide", ErrDecisionFailed, "boom"), CodeDecisionFailed},
		{"wrapped sentinel", fmt.Errorf("outer: %w", ErrStoreCommit), CodeStoreCommit},
		{"unrelated", errors.New("something else"), CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorCodeOf(tc.err); got != tc.want {
				t.Errorf("ErrorCodeOf(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrToolNotFound, "get_magic")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatal("expected errors.Is to see the sentinel")
	}
	if err.Error() != "Registry.Get: get_magic: tool not found" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Fatal("WrapOp(nil) must be nil")
	}
}
