package kverr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "acquisition with op",
			err:      &Error{Stage: StageAcquisition, Op: "get_str", Err: errors.New("pool: acquire timeout")},
			expected: "could not get redis connection from pool (get_str): pool: acquire timeout",
		},
		{
			name:     "command without op",
			err:      &Error{Stage: StageCommand, Err: errors.New("ERR wrong number of arguments")},
			expected: "error executing redis command: ERR wrong number of arguments",
		},
		{
			name:     "decode",
			err:      &Error{Stage: StageDecode, Op: "get_str", Err: errors.New("key not found")},
			expected: "error parsing string from redis result (get_str): key not found",
		},
		{
			name:     "client construction",
			err:      &Error{Stage: StageClientConstruction, Op: "dial", Err: errors.New("invalid URL scheme")},
			expected: "error creating redis client (dial): invalid URL scheme",
		},
		{
			name:     "unknown stage",
			err:      &Error{Stage: "other", Err: errors.New("boom")},
			expected: "redis error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(StageCommand, "set_str", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var kvErr *Error
	if !errors.As(err, &kvErr) {
		t.Fatal("errors.As should find *Error")
	}
	if kvErr.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", kvErr.Unwrap(), cause)
	}
}

func TestNew_NilError(t *testing.T) {
	if err := New(StageCommand, "op", nil); err != nil {
		t.Errorf("New(nil) = %v, want nil", err)
	}
}

func TestNew_KeepsExistingStage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	inner := New(StageClientConstruction, "dial", cause)
	wrapped := fmt.Errorf("acquire: %w", inner)

	err := New(StageAcquisition, "get_str", wrapped)

	stage, ok := StageOf(err)
	if !ok {
		t.Fatal("StageOf should find a stage")
	}
	if stage != StageClientConstruction {
		t.Errorf("stage = %s, want %s", stage, StageClientConstruction)
	}
	if !errors.Is(err, cause) {
		t.Error("cause must survive re-tagging")
	}
	if got := err.(*Error).Op; got != "get_str" {
		t.Errorf("Op = %q, want get_str", got)
	}
}

func TestNew_KeepsWrappingContext(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	wrapped := fmt.Errorf("acquire: %w", New(StageClientConstruction, "dial", cause))

	err := New(StageAcquisition, "get_str", wrapped)

	msg := err.Error()
	if !strings.Contains(msg, "acquire: ") {
		t.Errorf("Error() = %q, want the acquire: context kept", msg)
	}
	if !strings.HasPrefix(msg, "error creating redis client (get_str): ") {
		t.Errorf("Error() = %q, want client construction prefix with op get_str", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("cause must survive re-tagging")
	}
}

func TestNew_RetagBareError(t *testing.T) {
	inner := New(StageAcquisition, "acquire", errors.New("pool: acquire timeout"))

	err := New(StageCommand, "get_str", inner)

	want := "could not get redis connection from pool (get_str): pool: acquire timeout"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsStage(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(StageDecode, "get_str", errors.New("nil reply")))

	if !IsStage(err, StageDecode) {
		t.Error("IsStage(StageDecode) = false, want true")
	}
	if IsStage(err, StageCommand) {
		t.Error("IsStage(StageCommand) = true, want false")
	}
	if IsStage(errors.New("plain"), StageDecode) {
		t.Error("plain error should carry no stage")
	}
}
