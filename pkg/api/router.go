// Package api is the local HTTP facade over the engine: synchronous
// JSON reads and mutations for a UI process on the same host. Page
// reads trigger background sync as a side effect inside the feed
// engine; nothing here ever waits on the network.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scenefeed/pkg/config"
	"scenefeed/pkg/feed"
	"scenefeed/pkg/logger"
	"scenefeed/pkg/mutate"
	"scenefeed/pkg/store"
	"scenefeed/pkg/utils"
)

// Server bundles the engines the facade exposes.
type Server struct {
	store  *store.Store
	feed   *feed.Engine
	mutate *mutate.Engine
}

func NewServer(st *store.Store, fe *feed.Engine, me *mutate.Engine) *Server {
	return &Server{store: st, feed: fe, mutate: me}
}

// Handler builds the facade router.
func (s *Server) Handler(rl config.RateLimitConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "replica not open")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/scenarios/{id}/feed", s.handleFeed).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{id}/profiles/{pid}/feed", s.handleProfileFeed).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{id}/conversations/{cid}/messages", s.handleMessages).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{id}/posts/{postID}/root", s.handleThreadRoot).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{id}/likes/{postID}/toggle", s.handleToggleLike).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios/{id}/pins", s.handleReorderPins).Methods(http.MethodPut)
	v1.HandleFunc("/profiles/{id}/pinned-post", s.handleSetPinnedPost).Methods(http.MethodPut)
	v1.HandleFunc("/scenarios/{id}/gm/sheets", s.handleGMSheets).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios/{id}/conversations/{cid}/messages", s.handleSendMessage).Methods(http.MethodPost)

	logger.Info("facade_routes_registered")
	pool := &limiterPool{cfg: rl}
	return rateLimit(pool, logRequests(r))
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}
