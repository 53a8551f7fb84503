package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDistributedStopService_NilConn(t *testing.T) {
	svc := NewDistributedStopService(nil, nil, logger.Discard(), "i1")
	require.Nil(t, svc)

	assert.NoError(t, svc.Start())
	assert.NoError(t, svc.Stop())

	resp, err := svc.RequestStop(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestProcessLocalStop(t *testing.T) {
	r, err := NewRegistry(time.Minute, "", logger.Discard())
	require.NoError(t, err)
	defer r.Shutdown()

	svc := &DistributedStopService{registry: r, logger: logger.Discard(), instanceID: "i1"}

	_, owned := svc.processLocalStop(StopRequest{MessageID: "m1"})
	assert.False(t, owned, "unknown runs get no reply")

	_, ctx, err := r.Register(context.Background(), "m1", RegisterOptions{})
	require.NoError(t, err)

	resp, owned := svc.processLocalStop(StopRequest{MessageID: "m1", Reason: string(StopReasonUserCancelled)})
	require.True(t, owned)
	assert.True(t, resp.Success)
	assert.True(t, resp.Found)
	assert.ErrorIs(t, context.Cause(ctx), bridge.ErrStopped)

	resp, owned = svc.processLocalStop(StopRequest{MessageID: "m1"})
	require.True(t, owned)
	assert.False(t, resp.Success)
	assert.True(t, resp.AlreadyFinished)
}
