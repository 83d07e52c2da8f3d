package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotFound, "dossier not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped domain error", func(t *testing.T) {
		inner := New(CodeConflict, "stale version")
		err := Wrap(inner, CodePersistence, "commit failed")
		assert.True(t, HasCode(err, CodePersistence))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load: %w", New(CodeNotFound, "missing"))
		assert.True(t, Is(err, CodeNotFound))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidTransition, CodeOf(New(CodeInvalidTransition, "no")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, "internal error", MessageOf(errors.New("boom")))
	assert.Equal(t, "no", MessageOf(New(CodeInvalidTransition, "no")))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodePersistence, "failed to commit")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
