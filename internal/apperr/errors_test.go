package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("slot")))
	assert.Equal(t, KindConflict, KindOf(Conflict("taken")))
	assert.Equal(t, KindForbidden, KindOf(Forbidden("nope")))

	// unclassified errors default to internal
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	// the kind survives wrapping
	wrapped := fmt.Errorf("handler: %w", NotFound("booking"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(Conflict("taken"), KindConflict))
	assert.False(t, Is(Conflict("taken"), KindNotFound))
	assert.False(t, Is(nil, KindInternal))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("load slot", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidationfCarriesField(t *testing.T) {
	err := Validationf("track_id", "track %q does not exist", "t1")
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Len(t, e.Fields, 1)
	assert.Equal(t, "track_id", e.Fields[0].Field)
}
