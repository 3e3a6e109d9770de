package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/broker"
	"github.com/killerdox/buildsync/internal/build"
	"github.com/killerdox/buildsync/internal/catalog"
	"github.com/killerdox/buildsync/internal/snapshot"
	"github.com/killerdox/buildsync/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// ListCategory handles GET /api/{category}.
func ListCategory(cat *catalog.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")

		names, err := cat.List(category)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				writeError(w, http.StatusNotFound, "category not found")
				return
			}
			log.Error("list category failed", zap.String("category", category), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list category")
			return
		}
		writeJSON(w, http.StatusOK, names)
	}
}

// ListSubcategory handles GET /api/{category}/{sub}: character-scoped
// modifiers and rarity-scoped consumables. Consumable rarity folders are
// narrowed to .png because they mix source files in with the icons.
func ListSubcategory(cat *catalog.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		sub := chi.URLParam(r, "sub")

		names, err := cat.ListSub(category, sub)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				writeError(w, http.StatusNotFound, "subcategory not found")
				return
			}
			log.Error("list subcategory failed",
				zap.String("category", category), zap.String("sub", sub), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list subcategory")
			return
		}
		if category == "offerings" {
			names = catalog.FilterExt(names, ".png")
		}
		writeJSON(w, http.StatusOK, names)
	}
}

// Broadcast handles POST /api/realtime/broadcast: fan a client envelope
// out to every push subscriber. Repeats within the dedup window are
// acknowledged without re-broadcasting.
func Broadcast(b *broker.Broker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env types.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if env.Type == "" || env.OriginID == "" {
			writeError(w, http.StatusBadRequest, "missing required fields: type, originId")
			return
		}
		if env.UpdatedAt == 0 {
			env.UpdatedAt = time.Now().UnixMilli()
		}

		delivered := b.PublishEnvelope(env)
		writeJSON(w, http.StatusOK, types.BroadcastResult{Success: true, Cached: !delivered})
	}
}

type stateResponse struct {
	build.Build
	Timestamp int64 `json:"timestamp"`
}

// GetState handles GET /api/realtime/state for polling clients.
func GetState(store *snapshot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stateResponse{
			Build:     store.Get(),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// SetState handles POST /api/realtime/state: wholesale overwrite of the
// shared build.
func SetState(store *snapshot.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b build.Build
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		at := store.Set(b)
		writeJSON(w, http.StatusOK, types.SetStateResult{Success: true, UpdatedAt: at})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
