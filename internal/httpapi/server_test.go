package httpapi

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/orakle-ai/orakle/internal/config"
	"github.com/orakle-ai/orakle/internal/events"
	"github.com/orakle-ai/orakle/internal/health"
	"github.com/orakle-ai/orakle/internal/registry"
	embmock "github.com/orakle-ai/orakle/pkg/provider/embeddings/mock"
	skillsmock "github.com/orakle-ai/orakle/pkg/skills/mock"
)

// fakeRunner is a ChatRunner that replays a fixed event sequence. With
// waitCtx set it then blocks until the turn context is cancelled, recording
// that the cancellation arrived.
type fakeRunner struct {
	events    []events.Event
	waitCtx   bool
	cancelled atomic.Bool
}

func (f *fakeRunner) Run(ctx context.Context, _ string, mux *events.Mux) {
	defer mux.Close()
	for _, ev := range f.events {
		mux.Publish(ev)
	}
	if f.waitCtx {
		<-ctx.Done()
		f.cancelled.Store(true)
	}
}

// newTestServer builds a Server with inert defaults; mutate overrides the
// pieces a test cares about.
func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()

	opts := Options{
		Store:    config.NewStore(config.Default()),
		Registry: registry.New(&skillsmock.Host{}, &embmock.Provider{}),
		Health:   health.New(),
		Runner:   func() ChatRunner { return nil },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}
