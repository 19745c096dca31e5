package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/harun/echosweep/pkg/sweep"
)

// Artifact file names inside a sweep's output directory.
const (
	TensorFile   = "tensor.json"
	CoordsFile   = "coords.json"
	FailuresFile = "failures.json"
	ResultsFile  = "results.json"
)

// Float is a float64 that encodes NaN and infinities as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// TensorDocument is the persisted result tensor. Rows are flattened
// beta-major and index-aligned with the coordinates document; a grid point
// without a result has a row of nulls.
type TensorDocument struct {
	SweepID string                `json:"sweep_id"`
	Mode    sweep.AggregationMode `json:"mode"`

	// Shape is [len(beta), len(dist), len(Fields)]
	Shape  []int     `json:"shape"`
	Fields []string  `json:"fields"`
	Rows   [][]Float `json:"rows"`

	// Raw is set in raw mode: one row per repetition, shape
	// [len(beta), len(dist), repetitions, len(RawFields)]
	RawShape  []int       `json:"raw_shape,omitempty"`
	RawFields []string    `json:"raw_fields,omitempty"`
	Raw       [][][]Float `json:"raw,omitempty"`
}

// CoordsDocument lists the (beta, dist) pair of every tensor row.
type CoordsDocument struct {
	Betas  []float64    `json:"betas"`
	Dists  []float64    `json:"dists"`
	Points [][2]float64 `json:"points"`
}

// Artifacts are the paths written by WriteArtifacts.
type Artifacts struct {
	Dir      string
	Tensor   string
	Coords   string
	Failures string
	Results  string
}

// WriteArtifacts writes the tensor, its coordinates, the failure list and
// the full per-point results to dir.
func WriteArtifacts(dir, sweepID string, mode sweep.AggregationMode, repetitions int, t *sweep.ResultTensor) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	a := Artifacts{
		Dir:      dir,
		Tensor:   filepath.Join(dir, TensorFile),
		Coords:   filepath.Join(dir, CoordsFile),
		Failures: filepath.Join(dir, FailuresFile),
		Results:  filepath.Join(dir, ResultsFile),
	}

	coords := CoordsDocument{Betas: t.Betas, Dists: t.Dists, Points: make([][2]float64, len(t.Points))}
	for i, p := range t.Points {
		coords.Points[i] = [2]float64{p.Beta, p.Dist}
	}

	failures := t.Failures
	if failures == nil {
		failures = []sweep.GridFailure{}
	}

	docs := []struct {
		path string
		v    interface{}
	}{
		{a.Tensor, BuildTensorDocument(sweepID, mode, repetitions, t)},
		{a.Coords, coords},
		{a.Failures, failures},
		{a.Results, t.Results},
	}
	for _, d := range docs {
		if err := writeJSON(d.path, d.v); err != nil {
			return Artifacts{}, err
		}
	}
	return a, nil
}

// BuildTensorDocument flattens t into its persisted form.
func BuildTensorDocument(sweepID string, mode sweep.AggregationMode, repetitions int, t *sweep.ResultTensor) TensorDocument {
	doc := TensorDocument{
		SweepID: sweepID,
		Mode:    mode,
		Shape:   []int{t.Shape[0], t.Shape[1], len(sweep.SummaryFields)},
		Fields:  sweep.SummaryFields,
		Rows:    make([][]Float, len(t.Results)),
	}
	for i, r := range t.Results {
		if r == nil {
			doc.Rows[i] = nullRow(len(sweep.SummaryFields))
			continue
		}
		doc.Rows[i] = toFloats(r.SummaryRow())
	}

	if mode != sweep.AggregateRaw {
		return doc
	}

	doc.RawShape = []int{t.Shape[0], t.Shape[1], repetitions, len(sweep.RawFields)}
	doc.RawFields = sweep.RawFields
	doc.Raw = make([][][]Float, len(t.Results))
	for i, r := range t.Results {
		var rows [][]float64
		if r != nil {
			rows = r.RawRows()
		}
		block := make([][]Float, repetitions)
		for j := range block {
			if j < len(rows) {
				block[j] = toFloats(rows[j])
			} else {
				block[j] = nullRow(len(sweep.RawFields))
			}
		}
		doc.Raw[i] = block
	}
	return doc
}

// ReadTensorDocument loads a tensor written by WriteArtifacts.
func ReadTensorDocument(path string) (TensorDocument, error) {
	var doc TensorDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read tensor: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse tensor: %w", err)
	}
	return doc, nil
}

func toFloats(xs []float64) []Float {
	out := make([]Float, len(xs))
	for i, x := range xs {
		out[i] = Float(x)
	}
	return out
}

func nullRow(n int) []Float {
	out := make([]Float, n)
	for i := range out {
		out[i] = Float(math.NaN())
	}
	return out
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
