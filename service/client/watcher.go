package client

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/dashboard"
	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

type (
	// Watcher polls the selected app through the Dashboard stores and logs build changes.
	Watcher struct {
		// Config
		pollPeriod time.Duration
		timeout    time.Duration
		mode       storage.FetchMode
		branch     string
		// State (owned by the loop)
		dash     *dashboard.Dashboard
		// Last seen builds
		builds map[string]BuildChange
		polls    int
		//
		loop    *bg.Loop
		monitor *storage.Monitor
		stopCh  chan struct{}
		doneCh  chan struct{}
	}

	// BuildChange is a build status change observed between two polls.
	BuildChange struct {
		Id     string
		Number int64
		Branch string
		// Empty for a new build
		From string
		// Empty for a removed build
		To string
	}
)

// String implements the stringer interface.
func (c BuildChange) String() string {
	switch {
	case c.From == "":
		return fmt.Sprintf("#%d [%s]: new (%s)", c.Number, c.Branch, c.To)
	case c.To == "":
		return fmt.Sprintf("#%d [%s]: removed", c.Number, c.Branch)
	}

	return fmt.Sprintf("#%d [%s]: %s -> %s", c.Number, c.Branch, c.From, c.To)
}

// String implements the stringer interface.
func (w *Watcher) String() string {
	return fmt.Sprintf("Watcher (%s)", w.dash.App())
}

// Dashboard returns the watched Dashboard.
func (w *Watcher) Dashboard() *dashboard.Dashboard {
	return w.dash
}

// Start starts the Watcher worker.
func (w *Watcher) Start() {
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.monitor.Start()
	go w.worker()
}

// Stop stops the Watcher worker and waits for the pending settlements.
func (w *Watcher) Stop() {
	if w.stopCh == nil {
		return
	}
	select {
	case <-w.stopCh:
		return
	default:
	}

	close(w.stopCh)
	<-w.doneCh
	w.loop.Stop()
	w.monitor.Stop()
}

// worker does the actual job.
func (w *Watcher) worker() {
	defer close(w.doneCh)

	glog.Infof("%s: start", w)
	glog.Infof("%s: pollPeriod: %v", w, w.pollPeriod)
	glog.Infof("%s: fetchMode:  %v", w, w.mode)

	w.loop.Do(w.poll)

	ticker := time.NewTicker(w.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Refresh the stores
			w.loop.Do(w.poll)
		case <-w.stopCh:
			// Stop the watcher
			glog.Infof("%s: stop", w)
			return
		}
	}
}

// poll issues the refresh requests (called on the loop).
func (w *Watcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)

	w.polls++
	poll := w.polls
	builds := w.dash.Builds.FetchBuilds(ctx, model.BuildQuery{Branch: w.branch}, w.mode)
	plan := w.dash.Billing.FetchPlan(ctx, true)

	go func() {
		<-builds.Done()
		<-plan.Done()
		cancel()
	}()

	builds.OnSuccess(func([]*storage.Model) {
		for _, c := range w.diff() {
			glog.Infof("%s: poll %d: %s", w, poll, c)
		}
		if p, found := w.dash.Billing.Plan(); found {
			glog.V(1).Infof("%s: plan %s: %d build minutes left", w, p.Name, p.MinutesLeft())
		}
	})
	builds.OnFailure(func(err error) {
		glog.Warningf("%s: poll %d: builds: %v", w, poll, err)
	})
	plan.OnFailure(func(err error) {
		if !IsNotFound(err) {
			glog.Warningf("%s: poll %d: plan: %v", w, poll, err)
		}
	})
}

// diff returns build changes since the previous call (called on the loop).
func (w *Watcher) diff() []BuildChange {
	changes := make([]BuildChange, 0)
	seen := make(map[string]bool)

	for _, m := range w.dash.Builds.List(w.branch) {
		id := m.Id()
		if id == "" {
			continue
		}
		seen[id] = true

		cur := BuildChange{
			Id:     id,
			Number: m.Int(dashboard.FieldNumber),
			Branch: m.String(dashboard.FieldBranch),
			To:     m.String(dashboard.FieldStatus),
		}
		prev, found := w.builds[id]
		if found && prev.To == cur.To {
			continue
		}
		cur.From = prev.To
		changes = append(changes, cur)
		w.builds[id] = cur
	}

	for id, prev := range w.builds {
		if !seen[id] {
			prev.From, prev.To = prev.To, ""
			changes = append(changes, prev)
			delete(w.builds, id)
		}
	}

	return changes
}

// NewWatcher creates a new Watcher object.
func NewWatcher(cfg WatchConfig, api dashboard.Api) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := storage.ParseFetchMode(cfg.FetchMode)

	monitor, err := storage.NewMonitor(cfg.MonitorPeriod)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}

	loop := bg.NewLoop()
	dash, err := dashboard.New(dashboard.Config{
		Env:     bg.Env{Calls: bg.Async{}, Settle: loop},
		App:     scope.NewScope(cfg.App),
		Api:     api,
		Monitor: monitor,
	})
	if err != nil {
		loop.Stop()
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	return &Watcher{
		pollPeriod: cfg.PollPeriod,
		timeout:    cfg.Timeout,
		mode:       mode,
		branch:     cfg.Branch,
		dash:       dash,
		builds:     make(map[string]BuildChange),
		loop:       loop,
		monitor:    monitor,
	}, nil
}
