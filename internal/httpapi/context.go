package httpapi

import (
	"context"
)

// serverBaseCtx is the daemon lifetime context. main cancels it on shutdown
// so in-flight segmentation stops even while client connections stay open.
var serverBaseCtx = context.Background()

// SetBaseContext installs the daemon lifetime context used by the inference
// handlers. A nil ctx resets to Background, which never cancels.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts ties a request to both the client connection and the daemon
// lifetime: the result is done as soon as either a or b is. Callers must
// invoke the returned cancel when the handler ends, or the watcher goroutine
// leaks.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		select {
		case <-a.Done():
		case <-b.Done():
		}
	}()
	return ctx, cancel
}
