package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ctxErrAtRelease error
	released := false
	fn := releaseAfterCancel(cancel, func() {
		ctxErrAtRelease = ctx.Err()
		released = true
	})
	assert.NoError(t, ctx.Err())

	fn()
	assert.True(t, released)
	assert.ErrorIs(t, ctxErrAtRelease, context.Canceled, "context must be cancelled before release")
}
