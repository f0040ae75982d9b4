package strataerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratadb/strata/pkg/strataerr"
)

func TestNew_CarriesCodeAndMessage(t *testing.T) {
	err := strataerr.New(strataerr.NotFound, "key %q missing", "a")
	assert.True(t, strataerr.Is(err, strataerr.NotFound))
	assert.Contains(t, err.Error(), "a")
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := strataerr.Wrap(strataerr.Io, cause, "flush failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestIs_FalseForDifferentCode(t *testing.T) {
	err := strataerr.New(strataerr.NotFound, "missing")
	assert.False(t, strataerr.Is(err, strataerr.Conflict))
}

func TestIs_FalseForNonStrataError(t *testing.T) {
	assert.False(t, strataerr.Is(errors.New("plain"), strataerr.NotFound))
}

func TestCodeOf_ExtractsCodeFromStrataError(t *testing.T) {
	err := strataerr.New(strataerr.Conflict, "commit race")
	assert.Equal(t, strataerr.Conflict, strataerr.CodeOf(err))
}

func TestCodeOf_ReturnsInternalForUnclassifiedError(t *testing.T) {
	assert.Equal(t, strataerr.Internal, strataerr.CodeOf(errors.New("boom")))
}

func TestCodeOf_ReturnsEmptyForNilError(t *testing.T) {
	assert.Equal(t, strataerr.Code(""), strataerr.CodeOf(nil))
}
