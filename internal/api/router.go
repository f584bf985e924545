package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive/taskhive/internal/api/middleware"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/scheduler"
)

// NewRouter builds the engine's HTTP surface. gatherer serves GET /metrics;
// pass the registry the engine's metrics were registered with.
func NewRouter(eng *engine.Engine, sched *scheduler.Service, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chimiddleware.Recoverer)

	tasks := NewTaskHandler(eng)
	types := NewTaskTypeHandler(eng)
	schedules := NewScheduleHandler(sched)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", tasks.Submit)
		r.Get("/", tasks.List)
		r.Get("/{id}", tasks.Get)
		r.Post("/{id}/@claim", tasks.Claim)
		r.Post("/{id}/@progress", tasks.Progress)
		r.Post("/{id}/@complete", tasks.Complete)
		r.Post("/{id}/@fail", tasks.Fail)
		r.Post("/{id}/@cancel", tasks.Cancel)
		r.Get("/{id}/@poll", tasks.Poll)
		r.Post("/{id}/@log", tasks.AppendLog)
		r.Get("/{id}/@logs", tasks.QueryLogs)
	})

	r.Route("/task-types", func(r chi.Router) {
		r.Post("/", types.Register)
		r.Get("/", types.List)
		r.Delete("/{id}", types.Unregister)
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", schedules.Create)
		r.Get("/", schedules.List)
		r.Get("/{id}", schedules.Get)
		r.Delete("/{id}", schedules.Delete)
	})

	return r
}
