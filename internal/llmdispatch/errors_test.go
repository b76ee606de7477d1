package llmdispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientClassification(t *testing.T) {
	err := NewTransient(errors.New("timeout"))
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

func TestPermanentClassification(t *testing.T) {
	err := NewPermanent(errors.New("unauthorized"))
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestPlainErrorIsNeitherClassification(t *testing.T) {
	err := errors.New("unclassified")
	assert.False(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}
