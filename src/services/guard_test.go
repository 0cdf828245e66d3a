package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunGuard(t *testing.T) {
	guard := newRunGuard()

	assert.True(t, guard.TryAcquire())
	assert.False(t, guard.TryAcquire(), "second acquire while held must fail")

	guard.Release()
	assert.True(t, guard.TryAcquire())
	guard.Release()
}
