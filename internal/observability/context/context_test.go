package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAndHouseholdIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, HouseholdIDFromContext(ctx))

	ctx = WithRequestID(ctx, "01J0000000000000000000000")
	ctx = WithHouseholdID(ctx, "42")
	assert.Equal(t, "01J0000000000000000000000", RequestIDFromContext(ctx))
	assert.Equal(t, "42", HouseholdIDFromContext(ctx))

	// empty values leave the context untouched
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
}
