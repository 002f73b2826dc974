package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage sentinel", ErrUsage, ExitUsage},
		{"wrapped config", fmt.Errorf("loading: %w", ErrConfig), ExitUsage},
		{"format", fmt.Errorf("parsing: %w", ErrFormat), ExitFailure},
		{"app error wins", New(ErrFormat, 7, "custom"), 7},
		{"wrapped app error", fmt.Errorf("run: %w", Newf(ErrUsage, ExitUsage, "missing %s", "-f")), ExitUsage},
		{"unknown", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrTransport, ExitFailure, "status %d", 503)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, "search transport failure: status 503", err.Error())
}

func TestIsPerQuery(t *testing.T) {
	assert.True(t, IsPerQuery(fmt.Errorf("q: %w", ErrTransport)))
	assert.True(t, IsPerQuery(ErrResponseFormat))
	assert.True(t, IsPerQuery(ErrTimeout))
	assert.False(t, IsPerQuery(ErrFormat))
	assert.False(t, IsPerQuery(ErrUsage))
}
