package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

func TestWithTimePinsNow(t *testing.T) {
	fixed := time.Date(2025, 8, 17, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestRequestMetadataRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithClientMetadata(ctx, "10.0.0.7", "curl/8.0")

	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, "10.0.0.7", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
}

func TestEmptyContextReturnsZeroValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))
}
