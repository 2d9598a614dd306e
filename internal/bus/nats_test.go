package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, "simple-imagegen", opts.Name)
	assert.Equal(t, DefaultHandlerTimeout, opts.HandlerTimeout)
	assert.NotNil(t, opts.Logger)

	custom := Options{Name: "worker-2", HandlerTimeout: time.Second}.withDefaults()
	assert.Equal(t, "worker-2", custom.Name)
	assert.Equal(t, time.Second, custom.HandlerTimeout)
}

func TestWithTimeoutBoundsEachMessage(t *testing.T) {
	var (
		got      []byte
		deadline time.Time
		hasDL    bool
	)
	cb := withTimeout(250*time.Millisecond, func(ctx context.Context, data []byte) {
		got = data
		deadline, hasDL = ctx.Deadline()
	})

	start := time.Now()
	cb(&nats.Msg{Subject: "imagegen.jobs.submit", Data: []byte(`{"prompt":"x"}`)})

	assert.Equal(t, `{"prompt":"x"}`, string(got))
	require.True(t, hasDL)
	assert.WithinDuration(t, start.Add(250*time.Millisecond), deadline, 200*time.Millisecond)
}
