package server

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"

	"github.com/itiky/resource-sync/storage"
)

const monitorName = "http"

type (
	// Config describes the Service worker settings.
	Config struct {
		// Running builds advance period
		AdvancePeriod time.Duration
		// Probability of a build to fail [0, 1]
		FailRate float64
		Seed     int64
	}

	// CIService implements the fake CI HTTP API.
	CIService struct {
		// Config
		advancePeriod time.Duration
		failRate      float64
		// State
		state   *State
		rnd     *rand.Rand
		router  chi.Router
		monitor *storage.Monitor
		//
		stopCh chan struct{}
	}
)

// Validate ensures all the necessary values are specified.
func (c Config) Validate() error {
	if c.AdvancePeriod <= 0 {
		return fmt.Errorf("%s: must be GT 0", "AdvancePeriod")
	}
	if c.FailRate < 0 || c.FailRate > 1 {
		return fmt.Errorf("%s: must be in [0, 1] range", "FailRate")
	}

	return nil
}

// Handler returns the HTTP API handler.
func (s *CIService) Handler() http.Handler {
	return s.router
}

// State returns the service backend state.
func (s *CIService) State() *State {
	return s.state
}

// Start starts the service worker.
func (s *CIService) Start() {
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	if s.monitor != nil {
		s.monitor.Start()
	}
	go s.worker()
}

// Stop stops the service worker.
func (s *CIService) Stop() {
	if s.stopCh == nil {
		return
	}

	close(s.stopCh)
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

// worker does the actual job.
func (s *CIService) worker() {
	glog.Infof("CIService: start (advance period: %v, fail rate: %.2f)", s.advancePeriod, s.failRate)

	ticker := time.NewTicker(s.advancePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// Service stop
			glog.Infof("CIService: stop")
			return
		case now := <-ticker.C:
			// Move running builds forward
			if cnt := s.state.Advance(now.UTC(), s.failRate, s.rnd); cnt > 0 {
				glog.V(1).Infof("CIService: %d builds advanced (state v%d)", cnt, s.state.Version())
			}
		}
	}
}

// monitorRequests reports every request served to the Monitor (keyed by the route pattern).
func (s *CIService) monitorRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var err error
		if ww.Status() >= http.StatusBadRequest {
			err = fmt.Errorf("status %d", ww.Status())
		}
		route := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		glog.V(2).Infof("CIService: %s %s: %d within %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
		if s.monitor != nil {
			s.monitor.RequestServed(monitorName, route, time.Since(start), err)
		}
	})
}

func (s *CIService) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.monitorRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"version": s.state.Version()})
	})
	r.Get("/apps", s.listApps)

	r.Route("/apps/{app}", func(r chi.Router) {
		r.Get("/builds", s.listBuilds)
		r.Post("/builds", s.triggerBuild)
		r.Post("/builds/batch", s.triggerBuilds)

		r.Get("/branches", s.listBranches)
		r.Get("/branches/{branch}/builds", s.listBranchBuilds)

		r.Get("/members", s.listMembers)
		r.Put("/members/{user}", s.putMember)
		r.Patch("/members/{user}", s.patchMember)
		r.Delete("/members/{user}", s.deleteMember)

		r.Get("/plan", s.getPlan)
	})

	// Build ids are global
	r.Patch("/builds", s.patchBuilds)
	r.Delete("/builds", s.deleteBuilds)
	r.Route("/builds/{id}", func(r chi.Router) {
		r.Get("/", s.getBuild)
		r.Patch("/", s.patchBuild)
		r.Delete("/", s.deleteBuild)
	})

	return r
}

// NewCIService creates a new CIService object.
func NewCIService(state *State, cfg Config, monitor *storage.Monitor) (*CIService, error) {
	if state == nil {
		return nil, fmt.Errorf("%s: nil", "state")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &CIService{
		advancePeriod: cfg.AdvancePeriod,
		failRate:      cfg.FailRate,
		state:         state,
		rnd:           rand.New(rand.NewSource(cfg.Seed)),
		monitor:       monitor,
	}
	s.router = s.routes()

	return s, nil
}
