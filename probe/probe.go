package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Func is a single readiness check. It returns nil when the probed
// resource is reachable.
type Func func(ctx context.Context) error

// Check pairs a probe with the name it reports under.
type Check struct {
	Name  string
	Probe Func
}

// Report maps check names to "OK" or the failure message.
type Report map[string]string

// Healthy reports whether every check in the report passed.
func (r Report) Healthy() bool {
	for _, status := range r {
		if status != "OK" {
			return false
		}
	}
	return true
}

// Run executes all checks concurrently, each bounded by timeout, and
// collects their outcomes. A zero timeout leaves the parent context in
// charge.
func Run(ctx context.Context, timeout time.Duration, checks []Check) Report {
	ctx = contextOrBackground(ctx)
	report := make(Report, len(checks))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			runCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			status := "OK"
			if check.Probe == nil {
				status = "no probe configured"
			} else if err := check.Probe(runCtx); err != nil {
				status = err.Error()
			}

			mu.Lock()
			report[check.Name] = status
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return report
}

// DBPinger is the subset of *sql.DB a database probe needs.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// MongoPinger is the subset of the MongoDB client a Mongo probe needs.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// NewPingProbe wraps an arbitrary ping function with uniform error
// reporting under the given name.
func NewPingProbe(name string, fn Func) Func {
	return func(ctx context.Context) error {
		if fn == nil {
			return fmt.Errorf("%s probe: ping function is nil", name)
		}
		if err := fn(contextOrBackground(ctx)); err != nil {
			return fmt.Errorf("%s probe failed: %w", name, err)
		}
		return nil
	}
}

// NewDBPingProbe builds a probe that pings a SQL database.
func NewDBPingProbe(name string, db DBPinger) Func {
	return func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("%s probe: db client is nil", name)
		}
		if err := db.PingContext(contextOrBackground(ctx)); err != nil {
			return fmt.Errorf("%s probe failed: %w", name, err)
		}
		return nil
	}
}

// NewMongoPingProbe builds a probe that pings MongoDB with the given read
// preference, defaulting to primary.
func NewMongoPingProbe(client MongoPinger, rp *readpref.ReadPref) Func {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("mongo probe: client is nil")
		}
		if rp == nil {
			rp = readpref.Primary()
		}
		if err := client.Ping(contextOrBackground(ctx), rp); err != nil {
			return fmt.Errorf("mongo probe failed: %w", err)
		}
		return nil
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
