package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/match"
	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

const maxBodyBytes = 1 << 20

// Board is the authoritative board the API exposes. *pipeline.Service
// satisfies it.
type Board interface {
	ListGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error)
	Get(ctx context.Context, kind pipeline.Kind, id string) (pipeline.Item, error)
	ReorderWithinGroup(ctx context.Context, kind pipeline.Kind, move pipeline.Move) ([]pipeline.Item, error)
	TransferToGroup(ctx context.Context, kind pipeline.Kind, id, group string) (pipeline.Item, error)
	RenumberGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error)
	CreateCandidate(ctx context.Context, in pipeline.NewCandidate) (pipeline.Item, error)
	CreateJob(ctx context.Context, in pipeline.NewJob) (pipeline.Item, error)
	UpdateCandidate(ctx context.Context, id string, p pipeline.CandidatePatch) (pipeline.Item, error)
	UpdateJob(ctx context.Context, id string, p pipeline.JobPatch) (pipeline.Item, error)
	ListAll(ctx context.Context, kind pipeline.Kind) ([]pipeline.Item, error)
	Counts(ctx context.Context) (pipeline.Counts, error)
}

// GroupResponse is an ordered group.
type GroupResponse struct {
	Kind  pipeline.Kind   `json:"kind"`
	Group string          `json:"group"`
	Items []pipeline.Item `json:"items"`
}

// StageRequest is the body of a transfer.
type StageRequest struct {
	Stage string `json:"stage,omitempty"`
	Group string `json:"group,omitempty"`
}

// ReorderRequest is the body of PATCH /api/{kind}/{id}/reorder; the source
// comes from the path.
type ReorderRequest struct {
	DestinationID string            `json:"destinationId,omitempty"`
	Position      ordering.Position `json:"position,omitempty"`
	ToOrder       *int              `json:"toOrder,omitempty"`
}

// BoardHandler serves the /api routes.
type BoardHandler struct {
	board  Board
	logger *zap.Logger
}

// NewBoardHandler wraps board. A nil logger is replaced by a no-op.
func NewBoardHandler(board Board, logger *zap.Logger) *BoardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardHandler{board: board, logger: logger}
}

// Routes registers read routes on r and mutation routes on a group
// wrapped by mutate, which may be nil.
func (h *BoardHandler) Routes(r chi.Router, mutate func(http.Handler) http.Handler) {
	r.Get("/api/_counts", h.counts)
	r.Route("/api/{kind}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/groups/{group}", h.listGroup)
		r.Get("/{id}", h.get)

		r.Group(func(r chi.Router) {
			if mutate != nil {
				r.Use(mutate)
			}
			r.Post("/", h.create)
			r.Patch("/{id}", h.update)
			r.Post("/reorder", h.reorder)
			r.Patch("/{id}/reorder", h.reorderItem)
			r.Patch("/{id}/stage", h.transfer)
			r.Post("/groups/{group}/renumber", h.renumber)
		})
	})
}

func (h *BoardHandler) listGroup(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	m, f, err := selectionFromQuery(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	group := chi.URLParam(r, "group")
	items, err := h.board.ListGroup(r.Context(), kind, group)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	g, _ := pipeline.ValidateGroup(kind, group)
	writeJSON(w, http.StatusOK, GroupResponse{Kind: kind, Group: g, Items: match.Select(items, m, f)})
}

// list serves GET /api/{kind}: every group in board order, narrowed by
// stage and the list filters, then paged with page and limit (or pageSize).
func (h *BoardHandler) list(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	m, f, err := selectionFromQuery(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := intParam(q, "page")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	limit, err := intParam(q, "limit", "pageSize")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var items []pipeline.Item
	if stage := firstOf(q, "stage", "group"); stage != "" {
		items, err = h.board.ListGroup(r.Context(), kind, stage)
	} else {
		items, err = h.board.ListAll(r.Context(), kind)
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.Paginate(kind, match.Select(items, m, f), page, limit))
}

func (h *BoardHandler) counts(w http.ResponseWriter, r *http.Request) {
	c, err := h.board.Counts(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *BoardHandler) update(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	var it pipeline.Item
	switch kind {
	case pipeline.KindCandidate:
		var p pipeline.CandidatePatch
		if err := decodeBody(w, r, &p); err != nil {
			respondWithError(w, r, err)
			return
		}
		it, err = h.board.UpdateCandidate(r.Context(), id, p)
	default:
		var p pipeline.JobPatch
		if err := decodeBody(w, r, &p); err != nil {
			respondWithError(w, r, err)
			return
		}
		it, err = h.board.UpdateJob(r.Context(), id, p)
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.logger.Info("Item updated", zap.String("kind", string(kind)), zap.String("id", it.ID), zap.String("group", it.Group))
	writeJSON(w, http.StatusOK, it)
}

func (h *BoardHandler) get(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	it, err := h.board.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *BoardHandler) create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var it pipeline.Item
	switch kind {
	case pipeline.KindCandidate:
		var in pipeline.NewCandidate
		if err := decodeBody(w, r, &in); err != nil {
			respondWithError(w, r, err)
			return
		}
		it, err = h.board.CreateCandidate(r.Context(), in)
	default:
		var in pipeline.NewJob
		if err := decodeBody(w, r, &in); err != nil {
			respondWithError(w, r, err)
			return
		}
		it, err = h.board.CreateJob(r.Context(), in)
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.logger.Info("Item created", zap.String("kind", string(kind)), zap.String("id", it.ID), zap.String("group", it.Group))
	writeJSON(w, http.StatusCreated, it)
}

func (h *BoardHandler) reorder(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var move pipeline.Move
	if err := decodeBody(w, r, &move); err != nil {
		respondWithError(w, r, err)
		return
	}
	h.applyMove(w, r, kind, move)
}

func (h *BoardHandler) reorderItem(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req ReorderRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	h.applyMove(w, r, kind, pipeline.Move{
		SourceID:      chi.URLParam(r, "id"),
		DestinationID: req.DestinationID,
		Position:      req.Position,
		ToOrder:       req.ToOrder,
	})
}

func (h *BoardHandler) applyMove(w http.ResponseWriter, r *http.Request, kind pipeline.Kind, move pipeline.Move) {
	items, err := h.board.ReorderWithinGroup(r.Context(), kind, move)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	group := ""
	if len(items) > 0 {
		group = items[0].Group
	}
	writeJSON(w, http.StatusOK, GroupResponse{Kind: kind, Group: group, Items: nonNil(items)})
}

func (h *BoardHandler) transfer(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req StageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	dest := req.Stage
	if dest == "" {
		dest = req.Group
	}
	if strings.TrimSpace(dest) == "" {
		respondWithError(w, r, fmt.Errorf("%w: stage is required", ordering.ErrBadRequest))
		return
	}
	it, err := h.board.TransferToGroup(r.Context(), kind, chi.URLParam(r, "id"), dest)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *BoardHandler) renumber(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	group := chi.URLParam(r, "group")
	items, err := h.board.RenumberGroup(r.Context(), kind, group)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	g, _ := pipeline.ValidateGroup(kind, group)
	writeJSON(w, http.StatusOK, GroupResponse{Kind: kind, Group: g, Items: nonNil(items)})
}

func kindParam(r *http.Request) (pipeline.Kind, error) {
	return pipeline.ParseKind(chi.URLParam(r, "kind"))
}

// selectionFromQuery reads list filters:
// match, exclude, tag and status (repeatable), name, q (or search), and
// applied_after, applied_before, created_after, created_before.
func selectionFromQuery(r *http.Request) (*match.Matcher, *match.CompositeFilter, error) {
	q := r.URL.Query()

	var m *match.Matcher
	mcfg := match.Config{Includes: q["match"], Excludes: q["exclude"]}
	if !mcfg.Empty() {
		var err error
		if m, err = match.New(mcfg); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ordering.ErrBadRequest, err)
		}
	}

	fcfg := &match.FilterConfig{
		Tags:      q["tag"],
		Status:    q["status"],
		NameRegex: q.Get("name"),
		Search:    firstOf(q, "q", "search"),
	}
	if a, b := q.Get("applied_after"), q.Get("applied_before"); a != "" || b != "" {
		fcfg.Applied = &match.DateFilterConfig{After: a, Before: b}
	}
	if a, b := q.Get("created_after"), q.Get("created_before"); a != "" || b != "" {
		fcfg.Created = &match.DateFilterConfig{After: a, Before: b}
	}
	f, err := match.NewFilterFromConfig(fcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ordering.ErrBadRequest, err)
	}
	return m, f, nil
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// intParam parses the first non-empty key as an int; absent is 0.
func intParam(q url.Values, keys ...string) (int, error) {
	raw := firstOf(q, keys...)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ordering.ErrBadRequest, keys[0], raw)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", ordering.ErrBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", ordering.ErrBadRequest, err)
	}
	return nil
}

func nonNil(items []pipeline.Item) []pipeline.Item {
	if items == nil {
		return []pipeline.Item{}
	}
	return items
}
