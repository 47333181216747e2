package httpapi

import (
	"context"
	"testing"
	"time"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context not done")
	}
}

func TestJoinContextsClientDisconnect(t *testing.T) {
	client, cancelClient := context.WithCancel(context.Background())
	daemon := context.Background()

	ctx, cancel := joinContexts(client, daemon)
	defer cancel()
	select {
	case <-ctx.Done():
		t.Fatalf("joined context done before either parent")
	default:
	}

	cancelClient()
	waitDone(t, ctx)
}

func TestJoinContextsDaemonShutdown(t *testing.T) {
	client := context.Background()
	daemon, stop := context.WithCancel(context.Background())

	ctx, cancel := joinContexts(client, daemon)
	defer cancel()

	stop()
	waitDone(t, ctx)
}

func TestSetBaseContextNilResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	t.Cleanup(func() { SetBaseContext(nil) })
	cancel()
	waitDone(t, serverBaseCtx)

	SetBaseContext(nil)
	select {
	case <-serverBaseCtx.Done():
		t.Fatalf("base context still cancelable after reset")
	default:
	}
}
