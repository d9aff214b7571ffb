package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("store down")
	err := fmt.Errorf("claim: %w", Wrap(base, CodeInternal, "failed to claim request"))

	assert.True(t, HasCode(err, CodeInternal))
	assert.False(t, HasCode(err, CodeConflict))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "failed to claim request: store down", Wrap(base, CodeInternal, "failed to claim request").Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeRateLimited, CodeOf(New(CodeRateLimited, "slow down")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
