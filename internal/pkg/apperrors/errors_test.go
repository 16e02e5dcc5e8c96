package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", Validation("import", "bad email %q", "x"), false},
		{"configuration", Configuration("execute", "missing from address"), false},
		{"lock", Lock("acquire", "held by %s", "w-1"), false},
		{"database", Database("lead.update", errors.New("conn reset")), true},
		{"timeout", Timeout("verify", context.DeadlineExceeded), true},
		{"external retryable", External("ses.send", "Throttling", true, errors.New("slow down")), true},
		{"external fatal", External("ses.send", "AccountSuspended", false, errors.New("no")), false},
		{"wrapped database", fmt.Errorf("outer: %w", Database("op", errors.New("x"))), true},
		{"unknown", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", External("verify", "500", true, errors.New("upstream")))
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.True(t, Is(err, KindExternalService))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := Database("lead.get", errors.New("no rows"))
	assert.Equal(t, "lead.get: no rows", err.Error())

	v := Validation("", "bad input")
	assert.Equal(t, "bad input", v.Error())

	inner := errors.New("root")
	wrapped := &Error{Kind: KindLock, Op: "release", Message: "failed", Err: inner}
	assert.Equal(t, "release: failed: root", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}
