// Package handler provides the HTTP handlers for the collection server.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/schema"
	"github.com/stevemurr/restcollection/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store store.Store
	mux   *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(s store.Store) *Handler {
	h := &Handler{store: s, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	// --- Collection endpoints ---
	h.mux.HandleFunc("GET /collections", h.listCollections)
	h.mux.HandleFunc("GET /collections/{collection}/items", named(h.listItems))
	h.mux.HandleFunc("POST /collections/{collection}/items", named(h.createItem))
	h.mux.HandleFunc("DELETE /collections/{collection}/items", named(h.deleteMatching))
	h.mux.HandleFunc("GET /collections/{collection}/items/{key}", named(h.getItem))
	h.mux.HandleFunc("PUT /collections/{collection}/items/{key}", named(h.upsertItem))
	h.mux.HandleFunc("DELETE /collections/{collection}/items/{key}", named(h.deleteItem))

	// --- Schema endpoints ---
	h.mux.HandleFunc("GET /schemas", h.listSchemas)
	h.mux.HandleFunc("GET /schemas/{collection}", named(h.getSchema))
	h.mux.HandleFunc("PUT /schemas/{collection}", named(h.putSchema))
	h.mux.HandleFunc("DELETE /schemas/{collection}", named(h.deleteSchema))
}

// named rejects collection names the stores cannot hold, such as "../x".
func named(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ValidName(r.PathValue("collection")); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%v %q", err, r.PathValue("collection")))
			return
		}
		next(w, r)
	}
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if status >= 500 {
		glog.Errorf("[handler] %d %s\n", status, msg)
	}
	writeJSON(w, status, map[string]string{"detail": msg})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// bodyStatus maps a request body error to 413 or 400.
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func readRecord(w http.ResponseWriter, r *http.Request) (*collection.Record, error) {
	b, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	return collection.ParseRecord(b)
}

func parseISO(s string) (time.Time, error) {
	s = strings.Replace(s, "Z", "+00:00", 1)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
}

func updatedAt(rec *collection.Record) (time.Time, bool) {
	v, ok := rec.Get("updatedAt")
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := parseISO(s)
	return t, err == nil
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Collection Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collections ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.Collections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// listItems answers with the collection response contract:
//
//	{"data": {"<key>": {...}, ...}, "total": 42, "limit": 10, "offset": 20}
//
// "data" is an object whose key order is the result order.
func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	q, err := store.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.store.List(name, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	glog.V(1).Infof("[handler] list %s %s -> %d/%d\n", name, r.URL.RawQuery, len(page.Entries), page.Total)

	data := collection.NewRecord()
	for _, e := range page.Entries {
		data.Set(e.Key, e.Record)
	}
	resp := collection.NewRecord()
	resp.Set(collection.DefaultResultAttribute, data)
	resp.Set("total", page.Total)
	resp.Set("limit", q.Limit)
	resp.Set("offset", q.Offset)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.PathValue("collection"), r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// createItem stores a new record. Records without an id get a ULID.
func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	incoming, err := readRecord(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), "invalid JSON: "+err.Error())
		return
	}
	if !incoming.Has("id") {
		incoming.Set("id", ulid.Make().String())
	}
	key := collection.Stringify(incoming.ID())

	if !h.validate(w, name, incoming) {
		return
	}
	existing, err := h.store.Get(name, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("record %q already exists", key))
		return
	}
	if err := h.store.Put(name, key, incoming); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, incoming)
}

func (h *Handler) upsertItem(w http.ResponseWriter, r *http.Request) {
	name, key := r.PathValue("collection"), r.PathValue("key")
	incoming, err := readRecord(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), "invalid JSON: "+err.Error())
		return
	}
	if !incoming.Has("id") {
		incoming.Set("id", key)
	}
	if !h.validate(w, name, incoming) {
		return
	}

	// Last-write-wins: only update if incoming is newer
	existing, err := h.store.Get(name, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		et, eok := updatedAt(existing)
		nt, nok := updatedAt(incoming)
		if eok && nok && !nt.After(et) {
			writeJSON(w, http.StatusOK, existing)
			return
		}
	}

	if err := h.store.Put(name, key, incoming); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, incoming)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, err := h.store.Delete(r.PathValue("collection"), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// deleteMatching removes every record matching the query filters.
// Without any filter it refuses rather than wiping the collection.
func (h *Handler) deleteMatching(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	q, err := store.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(q.Where) == 0 && q.Search == "" {
		writeError(w, http.StatusBadRequest, "refusing to delete without a filter")
		return
	}
	q.Limit, q.Offset = 0, 0
	page, err := h.store.List(name, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	deleted := 0
	for _, e := range page.Entries {
		ok, err := h.store.Delete(name, e.Key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "deleted": deleted})
}

// ---------- schema endpoints ----------

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.store.Schemas()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make(map[string]json.RawMessage, len(schemas))
	for k, v := range schemas {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	s, err := h.store.Schema(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for collection %q", name))
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(s))
}

func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	s, err := readBody(w, r)
	if err != nil {
		writeError(w, bodyStatus(err), err.Error())
		return
	}
	if err := schema.Check(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.PutSchema(name, s); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(s))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	existed, err := h.store.DeleteSchema(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for collection %q", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "collection": name})
}

// validate writes a 422 and returns false when rec breaks the collection's schema.
func (h *Handler) validate(w http.ResponseWriter, name string, rec *collection.Record) bool {
	s, err := h.store.Schema(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	err = schema.Validate(s, rec)
	if err == nil {
		return true
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusUnprocessableEntity, "schema validation failed: "+err.Error())
	} else {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return false
}
