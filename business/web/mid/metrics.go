package mid

import (
	"context"
	"expvar"
	"net/http"
	"runtime"

	"github.com/agorachain/agora/foundation/web"
)

// counters holds the program counters published through the expvar endpoint
// on the debug mux.
type counters struct {
	goroutines *expvar.Int
	requests   *expvar.Int
	errors     *expvar.Int
	panics     *expvar.Int
}

// AddPanics increments the panics counter.
func (c *counters) AddPanics(ctx context.Context) {
	c.panics.Add(1)
}

// metrics is the single instance the middleware updates.
var metrics = counters{
	goroutines: expvar.NewInt("goroutines"),
	requests:   expvar.NewInt("requests"),
	errors:     expvar.NewInt("errors"),
	panics:     expvar.NewInt("panics"),
}

// Metrics updates program counters per request.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			metrics.requests.Add(1)

			// Update the count for the number of active goroutines every
			// 100 requests.
			if metrics.requests.Value()%100 == 0 {
				metrics.goroutines.Set(int64(runtime.NumGoroutine()))
			}

			if err != nil {
				metrics.errors.Add(1)
			}

			return err
		}

		return h
	}

	return m
}
