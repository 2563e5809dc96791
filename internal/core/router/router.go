package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/geohash-udf/internal/core/config"
	"github.com/mohammed-shakir/geohash-udf/internal/core/observability"
	"github.com/mohammed-shakir/geohash-udf/internal/function"
	"github.com/mohammed-shakir/geohash-udf/internal/geohash"
)

const maxBodyBytes = 1 << 20

// Handlers serves the geohash function over HTTP. Query string arguments are
// string-typed, so missing sentinels such as "NA" come back as null.
type Handlers struct {
	logger *slog.Logger
	cfg    config.Config
	fn     *function.Function
	points *pointHandlers
}

// New binds geohash(string, string) with the configured length, sentinels and
// range policy.
func New(logger *slog.Logger, cfg config.Config) (*Handlers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := FunctionOptions(cfg)
	if err != nil {
		return nil, err
	}
	fn, err := function.New(function.Name,
		[]function.ArgType{function.TypeString, function.TypeString}, opts...)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", function.Name, err)
	}
	return &Handlers{logger: logger, cfg: cfg, fn: fn}, nil
}

// FunctionOptions maps the service config onto function options.
func FunctionOptions(cfg config.Config) ([]function.Option, error) {
	policy, err := function.ParseRangePolicy(cfg.RangePolicy)
	if err != nil {
		return nil, fmt.Errorf("GEOHASH_RANGE_POLICY: %w", err)
	}
	opts := []function.Option{function.WithRangePolicy(policy)}
	if cfg.Missing != nil {
		opts = append(opts, function.WithMissing(cfg.Missing...))
	}
	if cfg.GeohashLength > 0 {
		opts = append(opts, function.WithLength(cfg.GeohashLength))
	}
	return opts, nil
}

type geohashResponse struct {
	Geohash *string `json:"geohash"`
	Error   string  `json:"error,omitempty"`
}

func (h *Handlers) Geohash() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		length := h.fn.Length()
		if raw := strings.TrimSpace(q.Get("length")); raw != "" {
			n, err := parseLength(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			length = n
		}

		args := []function.Value{function.String(q.Get("lat")), function.String(q.Get("lon"))}
		hash, ok, err := h.fn.EvaluateAt(args, length)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, geohashResponse{Geohash: optional(hash, ok)})
	}
}

type boxJSON struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

type pointJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (h *Handlers) Decode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimSpace(r.URL.Query().Get("hash"))
		start := time.Now()
		box, err := geohash.Decode(hash)
		observability.ObserveCodec("decode", err, time.Since(start).Seconds())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		lat, lon := box.Center()
		writeJSON(w, http.StatusOK, struct {
			Hash   string    `json:"hash"`
			Box    boxJSON   `json:"box"`
			Center pointJSON `json:"center"`
		}{
			Hash:   strings.ToLower(hash),
			Box:    boxJSON{MinLat: box.MinLat, MaxLat: box.MaxLat, MinLon: box.MinLon, MaxLon: box.MaxLon},
			Center: pointJSON{Lat: lat, Lon: lon},
		})
	}
}

func (h *Handlers) Neighbors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("hash")))
		start := time.Now()
		ns, err := geohash.Neighbors(hash)
		observability.ObserveCodec("neighbors", err, time.Since(start).Seconds())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Hash      string   `json:"hash"`
			Neighbors []string `json:"neighbors"`
		}{Hash: hash, Neighbors: ns})
	}
}

type evaluateRequest struct {
	Length int                `json:"length"`
	Rows   [][]function.Value `json:"rows"`
}

type evaluateResponse struct {
	Results []geohashResponse `json:"results"`
}

// fixes the output length for a batch
type atLength struct {
	fn     *function.Function
	length int
}

func (a atLength) Evaluate(args []function.Value) (string, bool, error) {
	return a.fn.EvaluateAt(args, a.length)
}

func (h *Handlers) Evaluate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if h.cfg.EvalMaxRows > 0 && len(req.Rows) > h.cfg.EvalMaxRows {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Errorf("too many rows: %d > %d", len(req.Rows), h.cfg.EvalMaxRows))
			return
		}
		length := h.fn.Length()
		if req.Length != 0 {
			if req.Length < 1 || req.Length > geohash.MaxPrecision {
				writeError(w, http.StatusBadRequest, &geohash.PrecisionError{Precision: req.Length})
				return
			}
			length = req.Length
		}

		results := function.EvaluateRows(r.Context(), atLength{fn: h.fn, length: length}, req.Rows, h.cfg.EvalMaxWorkers)

		out := evaluateResponse{Results: make([]geohashResponse, len(results))}
		failed := 0
		for i, res := range results {
			if res.Err != nil {
				failed++
				out.Results[i] = geohashResponse{Error: res.Err.Error()}
				continue
			}
			out.Results[i] = geohashResponse{Geohash: optional(res.Hash, !res.Null)}
		}
		if failed > 0 {
			h.logger.DebugContext(r.Context(), "evaluate rows failed", "rows", len(results), "failed", failed)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseLength(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("length: %w", err)
	}
	if n < 1 || n > geohash.MaxPrecision {
		return 0, &geohash.PrecisionError{Precision: n}
	}
	return n, nil
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

// per-call codec and argument errors are the caller's fault
func statusFor(err error) int {
	var (
		re  *geohash.RangeError
		pe  *geohash.PrecisionError
		fe  *geohash.FormatError
		ace *function.ArgumentCountError
		ate *function.ArgumentTypeError
	)
	switch {
	case errors.As(err, &re), errors.As(err, &pe), errors.As(err, &fe),
		errors.As(err, &ace), errors.As(err, &ate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency for route.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}
