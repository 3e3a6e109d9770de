package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/broker"
	"github.com/killerdox/buildsync/internal/catalog"
	"github.com/killerdox/buildsync/internal/snapshot"
	"github.com/killerdox/buildsync/internal/ws"
)

type Deps struct {
	Broker   *broker.Broker
	Snapshot *snapshot.Store
	Catalog  *catalog.Service
	Log      *zap.Logger

	Heartbeat time.Duration
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Broker, d.Log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/realtime/events", Events(d.Broker, d.Log, d.Heartbeat))
		r.Post("/realtime/broadcast", Broadcast(d.Broker, d.Log))
		r.Get("/realtime/state", GetState(d.Snapshot))
		r.Post("/realtime/state", SetState(d.Snapshot, d.Log))

		r.Get("/{category}", ListCategory(d.Catalog, d.Log))
		r.Get("/{category}/{sub}", ListSubcategory(d.Catalog, d.Log))
	})
	return r
}

// The planner frontend is served from a different origin in development.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
