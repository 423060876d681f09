// internal/monitoring/engine.go - Fleet orchestration
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solarwatch/internal/acquire"
	"solarwatch/internal/config"
	"solarwatch/internal/database"
	"solarwatch/internal/growatt"
	"solarwatch/internal/metrics"
	"solarwatch/internal/notifications"
	"solarwatch/internal/session"
	"solarwatch/internal/status"
)

// Engine drives the per-site cycle across the fleet: session health
// check, acquisition with the fallback chain, classification, persistence
// and conditional alerting. Every site is isolated; one site failing can
// never abort the sweep.
type Engine struct {
	cfg        *config.Config
	store      database.Store
	metrics    *metrics.Collector
	dispatcher *notifications.Dispatcher

	api    acquire.Strategy
	login  acquire.Strategy
	cookie acquire.Strategy

	// every browser launch, including the API fallback path, holds one
	// slot so headless Chrome instances stay within capacity
	browserSlots chan struct{}
}

// Outcome is the per-site result record of one sweep.
type Outcome struct {
	Site     string
	Previous *status.Status
	New      status.Status
	Strategy string
	Duration time.Duration
	Alerted  bool
	Err      error
}

func NewEngine(cfg *config.Config, store database.Store, collector *metrics.Collector, dispatcher *notifications.Dispatcher) *Engine {
	client := growatt.NewClient(
		cfg.Growatt.BaseURL,
		cfg.Growatt.Timeout,
		cfg.Growatt.UTCOffsetHours,
		cfg.Growatt.RatePerSecond,
	)

	return &Engine{
		cfg:          cfg,
		store:        store,
		metrics:      collector,
		dispatcher:   dispatcher,
		api:          acquire.NewAPIPoller(client),
		login:        acquire.NewLoginStrategy(cfg.Browser),
		cookie:       acquire.NewCookieStrategy(cfg.Browser),
		browserSlots: make(chan struct{}, cfg.Monitoring.BrowserSessions),
	}
}

// Run sweeps the fleet immediately, then on every interval tick until the
// context ends.
func (e *Engine) Run(ctx context.Context) {
	e.metrics.SetFleetSize(len(e.cfg.Sites))
	e.RunSweep(ctx)

	ticker := time.NewTicker(e.cfg.Monitoring.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stopping monitoring engine")
			return
		case <-ticker.C:
			e.RunSweep(ctx)
		}
	}
}

// RunSweep processes every configured site once and returns the per-site
// outcome records.
func (e *Engine) RunSweep(ctx context.Context) []Outcome {
	run := uuid.New().String()[:8]
	log := logrus.WithField("run", run)
	log.WithField("sites", len(e.cfg.Sites)).Info("Starting fleet sweep")

	e.checkSessionHealth(log)

	jobs := make(chan *config.Site)
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Monitoring.APIWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for site := range jobs {
				results <- e.runSite(ctx, site)
			}
		}()
	}

	go func() {
		for i := range e.cfg.Sites {
			jobs <- &e.cfg.Sites[i]
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var outcomes []Outcome
	for out := range results {
		fields := logrus.Fields{
			"site":     out.Site,
			"status":   out.New,
			"strategy": out.Strategy,
			"duration": out.Duration.Round(time.Millisecond),
		}
		if out.Previous != nil {
			fields["previous"] = *out.Previous
		} else {
			fields["previous"] = "none"
		}

		switch {
		case out.Err != nil:
			log.WithFields(fields).WithError(out.Err).Error("Site cycle failed")
		case out.Alerted:
			log.WithFields(fields).Warn("Site degraded, alert dispatched")
		default:
			log.WithFields(fields).Info("Site cycle completed")
		}
		outcomes = append(outcomes, out)
	}

	log.Info("Fleet sweep completed")
	return outcomes
}

// checkSessionHealth inspects each distinct session artifact once per
// sweep and surfaces renewal warnings before any cycle runs.
func (e *Engine) checkSessionHealth(log *logrus.Entry) {
	seen := make(map[string]bool)

	for i := range e.cfg.Sites {
		site := &e.cfg.Sites[i]
		if site.Kind != config.KindCookieSession || seen[site.CookieFile] {
			continue
		}
		seen[site.CookieFile] = true

		health := session.InspectFile(site.CookieFile, time.Now(), e.cfg.Monitoring.RenewalWarningDays)
		e.metrics.RecordSessionExpiry(site.CookieFile, health.DaysRemaining)

		entry := log.WithFields(logrus.Fields{
			"site":     site.Name,
			"artifact": site.CookieFile,
		})
		switch {
		case !health.NeedsRenewal && health.Detail != "":
			entry.Debug(health.Detail)
		case !health.NeedsRenewal:
			entry.WithField("days_remaining", health.DaysRemaining).Debug("Session healthy")
		case health.DaysRemaining > 0:
			entry.WithField("days_remaining", health.DaysRemaining).
				Warn("Session expires soon, renew the captured cookies before acquisition starts failing")
		default:
			entry.Warn("Session has expired or is invalid, renew the captured cookies")
		}
	}
}

// runSite executes one full cycle for one site. Panics and errors are
// converted into the outcome record; nothing escapes to the sweep.
func (e *Engine) runSite(ctx context.Context, site *config.Site) (out Outcome) {
	start := time.Now()
	out = Outcome{Site: site.Name}

	defer func() {
		if r := recover(); r != nil {
			out.New = status.Error
			out.Err = fmt.Errorf("site cycle panicked: %v", r)
		}
		out.Duration = time.Since(start)
	}()

	newStatus, strategy := e.resolveStatus(ctx, site)
	out.New = newStatus
	out.Strategy = strategy

	prev, err := e.store.Transition(ctx, site.Name, newStatus, time.Now())
	if err != nil {
		// the new state never committed, so alerting on it would lie
		out.Err = fmt.Errorf("failed to persist state: %w", err)
		return out
	}

	var prevStatus *status.Status
	if prev != nil {
		st := prev.Status
		prevStatus = &st
		out.Previous = &st
	}

	e.metrics.RecordOutcome(site.Name, strategy, newStatus, time.Since(start))

	if e.dispatcher != nil && notifications.ShouldAlert(prevStatus, newStatus) {
		alertCtx, cancel := context.WithTimeout(ctx, e.cfg.Gateway.Timeout)
		e.dispatcher.Dispatch(alertCtx, notifications.Event{
			Site:      site.Name,
			Previous:  *prevStatus,
			New:       newStatus,
			Contact:   site.Contact,
			Timestamp: time.Now(),
		})
		cancel()
		e.metrics.RecordAlert(site.Name, newStatus)
		out.Alerted = true
	}

	return out
}

// resolveStatus runs the site's acquisition strategy, applying the
// API -> browser -> persisted-status fallback chain for ApiPoll sites,
// and classifies whatever came back.
func (e *Engine) resolveStatus(ctx context.Context, site *config.Site) (status.Status, string) {
	thr := site.Thresholds()
	prev := e.previousStatus(ctx, site.Name)
	now := time.Now()

	switch site.Kind {
	case config.KindGrowattAPI:
		sample, err := e.api.Acquire(ctx, site)
		if err == nil {
			e.metrics.RecordAcquisition(site.Name, e.api.Name(), "success")
			return status.Classify(sample, thr, prev, now), e.api.Name()
		}

		kind := acquire.KindOf(err)
		e.metrics.RecordAcquisition(site.Name, e.api.Name(), kind.String())
		logrus.WithError(err).WithField("site", site.Name).Error("API acquisition failed")

		if kind != acquire.Transient {
			return status.Error, e.api.Name()
		}

		if site.HasLoginFallback() {
			e.metrics.RecordFallback(site.Name)
			logrus.WithField("site", site.Name).Warn("Falling back to browser login")

			if sample, err := e.acquireBrowser(ctx, e.login, site); err == nil {
				return status.Classify(sample, thr, prev, now), e.login.Name()
			} else {
				logrus.WithError(err).WithField("site", site.Name).Error("Browser fallback failed")
			}
		}

		// chain exhausted: degrade to the last persisted status, or
		// ERROR when the site was never seen before
		return status.Classify(status.Sample{}, thr, prev, now), e.api.Name()

	case config.KindBrowserLogin:
		sample, err := e.acquireBrowser(ctx, e.login, site)
		if err != nil {
			logrus.WithError(err).WithField("site", site.Name).Error("Browser acquisition failed")
			return status.Error, e.login.Name()
		}
		return status.Classify(sample, thr, prev, now), e.login.Name()

	case config.KindCookieSession:
		sample, err := e.acquireBrowser(ctx, e.cookie, site)
		if err != nil {
			logrus.WithError(err).WithField("site", site.Name).Error("Cookie-session acquisition failed")
			return status.Error, e.cookie.Name()
		}
		return status.Classify(sample, thr, prev, now), e.cookie.Name()

	default:
		// unreachable: kinds are validated at load time
		return status.Error, "none"
	}
}

// acquireBrowser runs a browser-backed strategy inside the session
// capacity limit.
func (e *Engine) acquireBrowser(ctx context.Context, strategy acquire.Strategy, site *config.Site) (status.Sample, error) {
	select {
	case e.browserSlots <- struct{}{}:
		defer func() { <-e.browserSlots }()
	case <-ctx.Done():
		return status.Sample{}, ctx.Err()
	}

	sample, err := strategy.Acquire(ctx, site)

	result := "success"
	if err != nil {
		result = acquire.KindOf(err).String()
	}
	e.metrics.RecordAcquisition(site.Name, strategy.Name(), result)

	return sample, err
}

func (e *Engine) previousStatus(ctx context.Context, site string) *status.Status {
	state, err := e.store.GetLast(ctx, site)
	if err != nil {
		logrus.WithError(err).WithField("site", site).Warn("Failed to read previous state")
		return nil
	}
	if state == nil {
		return nil
	}
	st := state.Status
	return &st
}
