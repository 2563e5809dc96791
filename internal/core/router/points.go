package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geohash-udf/internal/cache/cellindex"
	"github.com/mohammed-shakir/geohash-udf/internal/function"
	mylog "github.com/mohammed-shakir/geohash-udf/internal/logger"
)

var errNullCoordinates = errors.New("lat and lon are required")

type pointHandlers struct {
	index cellindex.CellIndex
	// bound at the index precision so its output is a storable cell
	fn *function.Function
}

// WithIndex enables the /points routes backed by index.
func (h *Handlers) WithIndex(index cellindex.CellIndex) (*Handlers, error) {
	if index == nil {
		h.points = nil
		return h, nil
	}
	opts, err := FunctionOptions(h.cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, function.WithLength(index.Precision()))
	fn, err := function.New(function.Name,
		[]function.ArgType{function.TypeDouble, function.TypeDouble}, opts...)
	if err != nil {
		return nil, fmt.Errorf("bind %s for index: %w", function.Name, err)
	}
	h.points = &pointHandlers{index: index, fn: fn}
	return h, nil
}

func (h *Handlers) IndexEnabled() bool { return h.points != nil }

type putPointRequest struct {
	Lat function.Value `json:"lat"`
	Lon function.Value `json:"lon"`
}

type pointResponse struct {
	Layer string `json:"layer"`
	ID    string `json:"id"`
	Cell  string `json:"cell"`
}

func (h *Handlers) PutPoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer, id := chi.URLParam(r, "layer"), chi.URLParam(r, "id")

		var req putPointRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cell, ok, err := h.points.fn.Evaluate([]function.Value{req.Lat, req.Lon})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, errNullCoordinates)
			return
		}
		if err := h.points.index.PutCell(r.Context(), layer, id, cell); err != nil {
			h.logError(r, "index put failed", err)
			writeError(w, indexStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, pointResponse{Layer: layer, ID: id, Cell: cell})
	}
}

func (h *Handlers) GetPoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer, id := chi.URLParam(r, "layer"), chi.URLParam(r, "id")
		cell, ok, err := h.points.index.Locate(r.Context(), layer, id)
		if err != nil {
			h.logError(r, "index locate failed", err)
			writeError(w, indexStatus(err), err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("point %q not found in layer %q", id, layer))
			return
		}
		writeJSON(w, http.StatusOK, pointResponse{Layer: layer, ID: id, Cell: cell})
	}
}

func (h *Handlers) DeletePoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer, id := chi.URLParam(r, "layer"), chi.URLParam(r, "id")
		removed, err := h.points.index.Remove(r.Context(), layer, id)
		if err != nil {
			h.logError(r, "index remove failed", err)
			writeError(w, indexStatus(err), err)
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, fmt.Errorf("point %q not found in layer %q", id, layer))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) Nearby() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer := chi.URLParam(r, "layer")
		q := r.URL.Query()
		cell, ok, err := h.points.fn.Evaluate([]function.Value{function.String(q.Get("lat")), function.String(q.Get("lon"))})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, errNullCoordinates)
			return
		}
		ids, err := h.points.index.NearbyCell(r.Context(), layer, cell)
		if err != nil {
			h.logError(r, "index nearby failed", err)
			writeError(w, indexStatus(err), err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, struct {
			Layer string   `json:"layer"`
			Cell  string   `json:"cell"`
			IDs   []string `json:"ids"`
		}{Layer: layer, Cell: cell, IDs: ids})
	}
}

func (h *Handlers) logError(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(mylog.WithFunction(r.Context(), function.Name), msg,
		"path", r.URL.Path, "err", err)
}

func indexStatus(err error) int {
	if errors.Is(err, cellindex.ErrEmptyID) {
		return http.StatusBadRequest
	}
	if code := statusFor(err); code != http.StatusInternalServerError {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
