package cli

import (
	"errors"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("stopwatch.yaml", "bad backend"), "config error in stopwatch.yaml: bad backend"},
		{NewConfigError("", "bad backend"), "config error: bad backend"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("database is locked")
	err := NewCommandError("prune", inner)

	if got, want := err.Error(), "command prune failed: database is locked"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("expected CommandError to unwrap to the cause")
	}
}

func TestNotFoundError(t *testing.T) {
	var err error = NewCommandError("show", &NotFoundError{ID: "abc"})

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "abc" {
		t.Errorf("expected NotFoundError for abc, got %v", err)
	}
}
