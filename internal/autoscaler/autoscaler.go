// Package autoscaler implements the Autoscaler (C9): two cooperating
// loops (pub/sub push + ticker pull) that start stopped worker machines
// when a language's queue has pending work. Grounded on the teacher's
// jobmanager.Start dual-loop launch (watchLoop + processLoops, each
// started via safeGo) and watchLoop's ticker+backoff shape
// (internal/services/jobmanager/manager.go), re-pointed at the control
// plane instead of a market-data refresh.
package autoscaler

import (
	"context"
	"sync"
	"time"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
)

const (
	pullInterval     = 10 * time.Second
	debounceWindow   = 30 * time.Second
	debounceSweep    = 120 * time.Second
	healthPingPeriod = 300 * time.Second
)

// LanguageApp maps a language tag to its worker app name, the static map
// spec.md §4.9 step 1 refers to.
type LanguageApp map[string]string

// Autoscaler runs the push and pull paths against a shared debounce
// table.
type Autoscaler struct {
	broker       interfaces.Broker
	controlPlane interfaces.ControlPlane
	apps         LanguageApp
	logger       *common.Logger
	now          func() time.Time

	mu            sync.Mutex
	lastRequested map[string]time.Time // app name -> last start request time
}

// New constructs an Autoscaler over the given language->app map.
func New(b interfaces.Broker, cp interfaces.ControlPlane, apps LanguageApp, logger *common.Logger) *Autoscaler {
	return &Autoscaler{
		broker:        b,
		controlPlane:  cp,
		apps:          apps,
		logger:        logger,
		now:           time.Now,
		lastRequested: make(map[string]time.Time),
	}
}

// Run launches the push loop, the pull loop, the debounce sweeper, and
// the broker health check, blocking until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		a.pushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pullLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.sweepLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.healthLoop(ctx)
	}()

	wg.Wait()
	return nil
}

// pushLoop subscribes to job_notifications; each message is a language
// tag that should be considered for a scale-up (spec.md §4.9 push path).
// On a subscribe failure it retries after a 5s backoff, and if the
// channel closes it resubscribes at once, rather than exiting — the pull
// path is the documented safety net if this loop stalls.
func (a *Autoscaler) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub, err := a.broker.Subscribe(ctx, broker.NotificationsChannel)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn().Err(err).Msg("autoscaler: push subscribe failed, retrying")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		a.drainSubscription(ctx, sub)
	}
}

func (a *Autoscaler) drainSubscription(ctx context.Context, sub interfaces.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Channel():
			if !ok {
				return
			}
			language := string(payload)
			a.considerScaleUp(ctx, language)
		}
	}
}

// pullLoop is the safety-net sweep of spec.md §4.9: every 10s, check
// every configured language's queue depth and consider a scale-up for
// any with pending work.
func (a *Autoscaler) pullLoop(ctx context.Context) {
	ticker := time.NewTicker(pullInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for language := range a.apps {
				depth, err := a.broker.QueueLen(ctx, broker.QueueKey(language))
				if err != nil {
					if a.logger != nil {
						a.logger.Warn().Err(err).Str("language", language).Msg("autoscaler: queue length check failed")
					}
					continue
				}
				if depth > 0 {
					a.considerScaleUp(ctx, language)
				}
			}
		}
	}
}

// considerScaleUp implements spec.md §4.9 steps 1-4 for one language tag.
func (a *Autoscaler) considerScaleUp(ctx context.Context, language string) {
	app, ok := a.apps[language]
	if !ok || app == "" {
		return
	}

	if !a.shouldRequest(app) {
		return
	}

	machines, err := a.controlPlane.ListMachines(ctx, app)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn().Err(err).Str("app", app).Msg("autoscaler: list machines failed, pull path will retry")
		}
		return
	}

	var stopped string
	for _, m := range machines {
		if m.State == "started" {
			return // work will be consumed
		}
		if m.State == "stopped" && stopped == "" {
			stopped = m.ID
		}
	}
	if stopped == "" {
		return
	}

	if err := a.controlPlane.StartMachine(ctx, app, stopped); err != nil {
		if a.logger != nil {
			a.logger.Warn().Err(err).Str("app", app).Str("machine_id", stopped).Msg("autoscaler: start machine failed")
		}
		return
	}

	a.recordRequest(app)
}

// shouldRequest reports whether app has not had a start requested within
// debounceWindow.
func (a *Autoscaler) shouldRequest(app string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastRequested[app]
	if !ok {
		return true
	}
	return a.now().Sub(last) >= debounceWindow
}

func (a *Autoscaler) recordRequest(app string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRequested[app] = a.now()
}

// sweepLoop evicts debounce entries older than debounceSweep, as spec.md
// §4.9 requires.
func (a *Autoscaler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(debounceSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			cutoff := a.now().Add(-debounceSweep)
			for app, t := range a.lastRequested {
				if t.Before(cutoff) {
					delete(a.lastRequested, app)
				}
			}
			a.mu.Unlock()
		}
	}
}

// healthLoop pings the broker every 300s; on failure it logs and relies
// on the next pull-path iteration as the safety net (spec.md §4.9's
// "Health" paragraph) since pushLoop already rebuilds its own
// subscription independently on error.
func (a *Autoscaler) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.broker.Ping(ctx); err != nil && a.logger != nil {
				a.logger.Warn().Err(err).Msg("autoscaler: broker health ping failed")
			}
		}
	}
}
