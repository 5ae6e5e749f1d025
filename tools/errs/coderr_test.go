package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrNotLeader.WrapMsg("user", "u1", "party", "p1")
	assert.True(t, ErrNotLeader.Is(err))
	assert.False(t, ErrNotInParty.Is(err))
}

func TestCodeExtraction(t *testing.T) {
	assert.Equal(t, CodeInvalidLocation, Code(ErrInvalidLocation))
	assert.Equal(t, CodeInvalidLocation, Code(ErrInvalidLocation.WrapMsg("lat", 91.0)))
	assert.Equal(t, CodeInternal, Code(assert.AnError))
}

func TestWithDetailAccumulates(t *testing.T) {
	e := ErrPartyNotFound.WithDetail("code 123456").WithDetail("second try")
	assert.Contains(t, e.Error(), "code 123456")
	assert.Contains(t, e.Error(), "second try")
	assert.Equal(t, CodePartyNotFound, e.Code)
}
