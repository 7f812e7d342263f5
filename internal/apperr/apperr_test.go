package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("exit status 1")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("%s is already in use", "a.example.com"), want: KindValidation},
		{name: "wrapped challenge", err: fmt.Errorf("create: %w", Challenge(base, "certbot failed")), want: KindChallenge},
		{name: "plain error", err: base, want: KindInternal},
		{name: "not found", err: NotFound("certificate %d not found", 3), want: KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("exit status 1")
	err := Configuration(base, "render proxy_host")

	if !errors.Is(err, base) {
		t.Error("expected wrapped error to match base")
	}
	if err.Error() != "render proxy_host: exit status 1" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsKind(nil, KindConfiguration) {
		t.Error("nil error must not match any kind")
	}
}
