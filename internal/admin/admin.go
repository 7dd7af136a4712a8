// Package admin exposes an optional HTTP+WebSocket debug surface over a
// running engine: REST endpoints for inspecting schemas and entity
// listings, and a WebSocket stream of notifications for the fields of
// every type known when the socket opens, for operators who want to watch live traffic without
// opening a wire-protocol connection (spec.md §6 frames this as an
// external, optional collaborator — not part of the engine's core
// contract).
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/notify"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/matthewbaird/eavdb/internal/wireproto"
)

// Server holds the dependencies the admin HTTP surface needs.
type Server struct {
	engine *executor.Engine
}

func NewServer(engine *executor.Engine) *Server {
	return &Server{engine: engine}
}

// Routes returns a new router serving the admin surface. Callers typically mount this at
// "/admin" on a process-wide chi.Router alongside application routes.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger, chimiddleware.Recoverer)

	r.Get("/schema", s.handleSchema)
	r.Get("/types/{type}/entities", s.handleListEntities)
	r.Get("/notifications", s.handleWatch)
	r.Get("/stats", s.handleStats)

	return r
}

type entityTypeSchema struct {
	Type   string       `json:"type"`
	Fields []fieldEntry `json:"fields"`
}

type fieldEntry struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
	Rank    int    `json:"rank"`
	Scope   string `json:"scope"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	in := s.engine.Interner()
	var out []entityTypeSchema
	for _, name := range in.ListEntityTypes() {
		t, ok := in.LookupEntityType(name)
		if !ok {
			continue
		}
		complete, err := s.engine.CompleteSchemaFor(t)
		if err != nil {
			continue
		}
		entry := entityTypeSchema{Type: name}
		for _, h := range complete.Order {
			fs := complete.Fields[h]
			scope := "Runtime"
			if fs.Scope == types.ScopeConfiguration {
				scope = "Configuration"
			}
			entry.Fields = append(entry.Fields, fieldEntry{
				Name:    fs.Name,
				Variant: variantName(fs.Variant),
				Rank:    fs.Rank,
				Scope:   scope,
			})
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	in := s.engine.Interner()
	t, ok := in.LookupEntityType(typeName)
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_TYPE", "no such entity type: "+typeName)
		return
	}

	pageSize := 50
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	pageNumber := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageNumber = n
		}
	}

	page, total, totalPages, _, err := s.engine.FindEntitiesPaginated(t, types.PageOpts{PageSize: pageSize, PageNumber: pageNumber}, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "QUERY_ERROR", err.Error())
		return
	}
	ids := make([]uint64, len(page))
	for i, id := range page {
		ids[i] = uint64(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities":    ids,
		"total":       total,
		"total_pages": totalPages,
		"page":        pageNumber,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_types": len(s.engine.Interner().ListEntityTypes()),
	})
}

// handleWatch upgrades to a WebSocket and streams notifications by
// registering one ON_TYPE subscription per field of every type that has a
// complete schema at connect time, all sharing one queue pumped as JSON
// frames. Types and fields registered after the socket opens are not
// watched.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		log.Printf("admin: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	queue := notify.NewQueue(256)
	var ids []string
	defer func() {
		for _, id := range ids {
			s.engine.Notify().Unregister(id)
		}
	}()

	in := s.engine.Interner()
	for _, name := range in.ListEntityTypes() {
		t, ok := in.LookupEntityType(name)
		if !ok {
			continue
		}
		complete, err := s.engine.CompleteSchemaFor(t)
		if err != nil {
			continue
		}
		for _, h := range complete.Order {
			id := s.engine.Notify().Register(notify.Config{
				Target: notify.Target{Type: t},
				Field:  h,
			}, queue)
			ids = append(ids, id)
		}
	}

	for {
		n, ok := queue.PopFront()
		if !ok {
			return
		}
		if err := wsjson.Write(ctx, conn, watchMessage{
			ConfigID: n.ConfigID,
			Entity:   uint64(n.Entity),
			Field:    uint32(n.Field),
			Old:      wireproto.EncodeValue(n.Old.Value),
			New:      wireproto.EncodeValue(n.New.Value),
		}); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

type watchMessage struct {
	ConfigID string `json:"config_id"`
	Entity   uint64 `json:"entity"`
	Field    uint32 `json:"field"`
	Old      string `json:"old"`
	New      string `json:"new"`
}

func variantName(v types.Variant) string {
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("admin: encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
