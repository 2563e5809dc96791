package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geohash-udf/internal/function"
)

// NullMarker is written for rows whose result is null.
const NullMarker = `\N`

type evalOptions struct {
	length      int
	missing     []string
	types       []string
	rangePolicy string
	workers     int
	chunk       int
}

func newEvalCmd(log func() *zerolog.Logger) *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Apply geohash(lat, lon) to tab or comma separated rows from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fn, err := opts.bind()
			if err != nil {
				return err
			}
			log().Debug().
				Str("call", fn.DisplayString(opts.types...)).
				Int("length", fn.Length()).
				Msg("bound function")
			return runEval(cmd.Context(), fn, cmd.InOrStdin(), cmd.OutOrStdout(), opts, log())
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.length, "length", "l", function.DefaultLength, "geohash length (1-12)")
	f.StringSliceVar(&opts.missing, "missing", function.DefaultMissing, "values treated as null")
	f.StringSliceVar(&opts.types, "types", []string{"string", "string"}, "declared argument types")
	f.StringVar(&opts.rangePolicy, "range-policy", "fail", `out-of-range coordinates: "fail" or "null"`)
	f.IntVar(&opts.workers, "workers", 4, "concurrent evaluators")
	f.IntVar(&opts.chunk, "chunk", 1024, "rows evaluated per batch")
	return cmd
}

func (o *evalOptions) bind() (*function.Function, error) {
	types := make([]function.ArgType, 0, len(o.types))
	for _, name := range o.types {
		t, err := function.ParseArgType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	policy, err := function.ParseRangePolicy(o.rangePolicy)
	if err != nil {
		return nil, err
	}
	return function.New(function.Name, types,
		function.WithLength(o.length),
		function.WithMissing(o.missing...),
		function.WithRangePolicy(policy))
}

// reads rows in chunks so output order matches input and memory stays bounded;
// blank lines produce no output row
func runEval(ctx context.Context, fn *function.Function, in io.Reader, out io.Writer, opts *evalOptions, zl *zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	chunk := opts.chunk
	if chunk <= 0 {
		chunk = 1024
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	rows := make([][]function.Value, 0, chunk)
	lines := make([]int, 0, chunk)
	line := 0
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		results := function.EvaluateRows(ctx, fn, rows, opts.workers)
		for i, res := range results {
			if res.Err != nil {
				return fmt.Errorf("line %d: %w", lines[i], res.Err)
			}
			v := res.Hash
			if res.Null {
				v = NullMarker
			}
			if _, err := fmt.Fprintln(w, v); err != nil {
				return err
			}
		}
		zl.Debug().Int("rows", len(rows)).Int("first_line", lines[0]).Msg("evaluated chunk")
		rows = rows[:0]
		lines = lines[:0]
		return nil
	}

	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		rows = append(rows, splitRow(text))
		lines = append(lines, line)
		if len(rows) == chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read line %d: %w", line+1, err)
	}
	return flush()
}

// splits on the first tab, else on commas; `\N` is the null marker
func splitRow(s string) []function.Value {
	s = strings.TrimRight(s, "\r")
	var parts []string
	if strings.Contains(s, "\t") {
		parts = strings.Split(s, "\t")
	} else {
		parts = strings.Split(s, ",")
	}
	vals := make([]function.Value, len(parts))
	for i, p := range parts {
		if p == NullMarker {
			vals[i] = function.Null()
			continue
		}
		vals[i] = function.String(p)
	}
	return vals
}
