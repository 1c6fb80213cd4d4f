// Package httpapi exposes a cache.Store[json.RawMessage] as a small JSON API.
//
//	GET    /v1/entries/{key}        value or 404
//	HEAD   /v1/entries/{key}        200 if live, 404 otherwise (no stats)
//	PUT    /v1/entries/{key}        body = JSON value; ?ttl=30s&tag=a&tag=b
//	DELETE /v1/entries/{key}        204 or 404
//	POST   /v1/entries/{key}/touch  ?ttl=1m; 204 or 404
//	DELETE /v1/entries              clear
//	GET    /v1/keys                 live keys, MRU first
//	POST   /v1/mget                 body = ["a","b"]; found values by key
//	POST   /v1/mset                 body = {"a":1,"b":2}; ?ttl=&tag=
//	DELETE /v1/tags/{tag}           {"removed": n}
//	GET    /v1/stats                cache.Stats
//	POST   /v1/flush                write the snapshot now
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tagcache/cache"
)

// maxBody caps request bodies.
const maxBody = 4 << 20

// Handler serves the API for one store.
type Handler struct {
	store *cache.Store[json.RawMessage]
	log   zerolog.Logger
	mux   *http.ServeMux
}

// New builds the handler.
func New(store *cache.Store[json.RawMessage], log zerolog.Logger) *Handler {
	h := &Handler{store: store, log: log, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /v1/entries/{key}", h.get)
	h.mux.HandleFunc("HEAD /v1/entries/{key}", h.has)
	h.mux.HandleFunc("PUT /v1/entries/{key}", h.set)
	h.mux.HandleFunc("DELETE /v1/entries/{key}", h.delete)
	h.mux.HandleFunc("POST /v1/entries/{key}/touch", h.touch)
	h.mux.HandleFunc("DELETE /v1/entries", h.clear)
	h.mux.HandleFunc("GET /v1/keys", h.keys)
	h.mux.HandleFunc("POST /v1/mget", h.mget)
	h.mux.HandleFunc("POST /v1/mset", h.mset)
	h.mux.HandleFunc("DELETE /v1/tags/{tag}", h.deleteByTag)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("POST /v1/flush", h.flush)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.store.Get(r.PathValue("key"))
	if !ok {
		h.error(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(v)
}

func (h *Handler) has(w http.ResponseWriter, r *http.Request) {
	if !h.store.Has(r.PathValue("key")) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	opts, err := setOptions(r)
	if err != nil {
		h.error(w, http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		h.error(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if !json.Valid(body) {
		h.error(w, http.StatusBadRequest, errors.New("body must be a JSON value"))
		return
	}
	h.store.Set(r.PathValue("key"), json.RawMessage(body), opts...)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(r.PathValue("key")) {
		h.error(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) touch(w http.ResponseWriter, r *http.Request) {
	var opts []cache.TouchOption
	if s := r.URL.Query().Get("ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			h.error(w, http.StatusBadRequest, fmt.Errorf("ttl: %w", err))
			return
		}
		opts = append(opts, cache.WithNewTTL(d))
	}
	if !h.store.Touch(r.PathValue("key"), opts...) {
		h.error(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clear(w http.ResponseWriter, _ *http.Request) {
	h.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) keys(w http.ResponseWriter, _ *http.Request) {
	keys := h.store.Keys()
	if keys == nil {
		keys = []string{}
	}
	h.json(w, http.StatusOK, keys)
}

func (h *Handler) mget(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&keys); err != nil {
		h.error(w, http.StatusBadRequest, err)
		return
	}
	h.json(w, http.StatusOK, h.store.MGet(keys...))
}

func (h *Handler) mset(w http.ResponseWriter, r *http.Request) {
	opts, err := setOptions(r)
	if err != nil {
		h.error(w, http.StatusBadRequest, err)
		return
	}
	var items map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&items); err != nil {
		h.error(w, http.StatusBadRequest, err)
		return
	}
	h.store.MSet(items, opts...)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteByTag(w http.ResponseWriter, r *http.Request) {
	n := h.store.DeleteByTag(r.PathValue("tag"))
	h.json(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, h.store.Stats())
}

func (h *Handler) flush(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Flush(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("flush failed")
		h.error(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setOptions reads ?ttl= and repeated ?tag= parameters.
func setOptions(r *http.Request) ([]cache.SetOption, error) {
	q := r.URL.Query()
	var opts []cache.SetOption
	if s := q.Get("ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("ttl: %w", err)
		}
		opts = append(opts, cache.WithTTL(d))
	}
	if tags := q["tag"]; len(tags) > 0 {
		opts = append(opts, cache.WithTags(tags...))
	}
	return opts, nil
}

func (h *Handler) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}

func (h *Handler) error(w http.ResponseWriter, status int, err error) {
	h.json(w, status, map[string]string{"error": err.Error()})
}
