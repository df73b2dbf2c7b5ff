package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"wrapped validation", fmt.Errorf("%w: empty question", ErrValidation), ErrValidation},
		{"double wrapped forbidden", fmt.Errorf("append: %w", fmt.Errorf("%w: owner mismatch", ErrForbidden)), ErrForbidden},
		{"joined with context error", errors.Join(ErrUpstreamTimeout, context.DeadlineExceeded), ErrUpstreamTimeout},
		{"plain error", errors.New("boom"), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
