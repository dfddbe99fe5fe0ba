// Package records exposes generic CRUD over the portfolio collections.
package records

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cascadeprojects/crm221/internal/platform/httpx"
	"github.com/cascadeprojects/crm221/internal/query"
)

// Paging bounds applied to list requests.
type Paging struct {
	DefaultSize int
	MaxSize     int
}

// Handler serves /{collection} routes for an allow-listed set of tables.
type Handler struct {
	logger      *slog.Logger
	store       query.Store
	collections map[string]struct{}
	paging      Paging
}

// NewHandler constructs a Handler over collections.
func NewHandler(logger *slog.Logger, store query.Store, collections []string, paging Paging) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if paging.DefaultSize <= 0 {
		paging.DefaultSize = 10
	}
	if paging.MaxSize < paging.DefaultSize {
		paging.MaxSize = paging.DefaultSize
	}
	set := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		set[c] = struct{}{}
	}
	return &Handler{logger: logger, store: store, collections: set, paging: paging}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{collection}", h.list)
	r.Post("/{collection}", h.create)
	r.Get("/{collection}/{id}", h.get)
	r.Patch("/{collection}/{id}", h.update)
	r.Delete("/{collection}/{id}", h.remove)
}

type listResponse struct {
	Data     []json.RawMessage `json:"data"`
	Count    int64             `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "collection")
	if _, ok := h.collections[name]; !ok {
		httpx.RespondError(w, fmt.Errorf("%w: collection %q", httpx.ErrNotFound, name))
		return "", false
	}
	return name, true
}

func (h *Handler) newQuery(spec query.Spec) *query.Query[json.RawMessage] {
	return query.New[json.RawMessage](h.store, spec, h.logger)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	table, ok := h.collection(w, r)
	if !ok {
		return
	}
	spec, err := query.ParseValues(table, r.URL.Query())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if spec.PageSize == 0 {
		spec.PageSize = h.paging.DefaultSize
	}
	if spec.PageSize > h.paging.MaxSize {
		spec.PageSize = h.paging.MaxSize
	}
	if spec.Page == 0 {
		spec.Page = 1
	}

	q := h.newQuery(spec)
	if err := q.Fetch(r.Context()); err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	st := q.State()
	resp := listResponse{Data: st.Rows, Page: spec.Page, PageSize: spec.PageSize}
	if resp.Data == nil {
		resp.Data = []json.RawMessage{}
	}
	if st.Count != nil {
		resp.Count = *st.Count
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	table, ok := h.collection(w, r)
	if !ok {
		return
	}
	spec := query.Spec{Table: table}
	if sel := r.URL.Query().Get("select"); sel != "" {
		parsed, err := query.ParseValues(table, r.URL.Query())
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
		spec.Columns = parsed.Columns
	}
	row, err := h.newQuery(spec).GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func decodeValues(r *http.Request) (map[string]any, error) {
	var values map[string]any
	if err := httpx.DecodeJSON(r, &values); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", httpx.ErrValidation)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", httpx.ErrValidation)
	}
	return values, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	table, ok := h.collection(w, r)
	if !ok {
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	row, err := h.newQuery(query.Spec{Table: table}).Insert(r.Context(), values)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	table, ok := h.collection(w, r)
	if !ok {
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	delete(values, query.IDColumn)
	row, err := h.newQuery(query.Spec{Table: table}).Update(r.Context(), chi.URLParam(r, "id"), values)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	table, ok := h.collection(w, r)
	if !ok {
		return
	}
	row, err := h.newQuery(query.Spec{Table: table}).Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("record request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
