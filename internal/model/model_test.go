package model

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const eps = 1e-9

func smallConfig() Config {
	return Config{InputDim: 8, HiddenDim: 6, StartUnit: 0}
}

func newTestModel(t *testing.T, seed uint64) *SegBot {
	t.Helper()
	m, err := New(smallConfig(), seed)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// unitCell returns a 1x1 GRU whose only non-zero weight feeds the input
// straight into the candidate gate.
func unitCell() *gruCell {
	return &gruCell{
		input:  1,
		hidden: 1,
		wIH:    mat.NewDense(3, 1, []float64{0, 0, 1}),
		wHH:    mat.NewDense(3, 1, []float64{0, 0, 0}),
		bIH:    []float64{0, 0, 0},
		bHH:    []float64{0, 0, 0},
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero_input", Config{InputDim: 0, HiddenDim: 4}},
		{"zero_hidden", Config{InputDim: 4, HiddenDim: 0}},
		{"negative_start", Config{InputDim: 4, HiddenDim: 4, StartUnit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, DefaultSeed); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.InputDim != 128 || cfg.HiddenDim != 256 || cfg.StartUnit != 0 {
		t.Errorf("DefaultConfig = %+v", cfg)
	}
}

func TestGRUCell_Step(t *testing.T) {
	c := unitCell()
	h := c.stepFrom([]float64{1})
	// r = z = sigmoid(0) = 0.5, n = tanh(1), h = (1-z)*n
	want := 0.5 * math.Tanh(1)
	if math.Abs(h[0]-want) > eps {
		t.Errorf("h = %v, want %v", h[0], want)
	}
}

func TestBiGRU_Encode_Directions(t *testing.T) {
	e := &BiGRU{forward: unitCell(), backward: unitCell()}
	x := mat.NewDense(2, 1, []float64{1, 0})

	out, err := e.Encode(x)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, c := out.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("dims = %dx%d, want 2x2", r, c)
	}

	h1 := 0.5 * math.Tanh(1)
	want := [][]float64{
		{h1, h1},    // forward after x0; backward after x1 then x0
		{h1 / 2, 0}, // forward decays; backward saw only x1=0
	}
	for i := range want {
		for j := range want[i] {
			if got := out.At(i, j); math.Abs(got-want[i][j]) > eps {
				t.Errorf("out[%d][%d] = %v, want %v", i, j, got, want[i][j])
			}
		}
	}
}

func TestBiGRU_Encode_Shape(t *testing.T) {
	m := newTestModel(t, DefaultSeed)
	x := RandomFeatures{Dim: 8, Seed: 1}.Features(make([]string, 5))

	out, err := m.Encoder().Encode(x)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, c := out.Dims()
	if r != 5 || c != 12 {
		t.Errorf("dims = %dx%d, want 5x12", r, c)
	}
	if m.Encoder().OutputDim() != 12 || m.Encoder().InputDim() != 8 {
		t.Errorf("dims reported %d/%d", m.Encoder().InputDim(), m.Encoder().OutputDim())
	}
}

func TestBiGRU_Encode_DimensionMismatch(t *testing.T) {
	m := newTestModel(t, DefaultSeed)
	x := mat.NewDense(3, 5, nil)
	_, err := m.Encoder().Encode(x)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func scoreTokens(t *testing.T, m *SegBot, n int) []float64 {
	t.Helper()
	x := RandomFeatures{Dim: m.Config().InputDim, Seed: 7}.Features(make([]string, n))
	enc, err := m.Encoder().Encode(x)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	scores, err := m.Scorer().Score(enc)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	return scores
}

func TestPointerScorer_Distribution(t *testing.T) {
	m := newTestModel(t, DefaultSeed)
	scores := scoreTokens(t, m, 20)
	if len(scores) != 20 {
		t.Fatalf("len = %d, want 20", len(scores))
	}
	var sum float64
	for i, s := range scores {
		if s <= 0 || s >= 1 {
			t.Errorf("scores[%d] = %v, want (0,1)", i, s)
		}
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("sum = %v, want 1", sum)
	}
}

func TestPointerScorer_Deterministic(t *testing.T) {
	a := scoreTokens(t, newTestModel(t, 42), 15)
	b := scoreTokens(t, newTestModel(t, 42), 15)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("scores differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	c := scoreTokens(t, newTestModel(t, 43), 15)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical scores")
	}
}

func TestPointerScorer_Errors(t *testing.T) {
	m := newTestModel(t, DefaultSeed)

	t.Run("too_short", func(t *testing.T) {
		_, err := m.Scorer().Score(mat.NewDense(1, 12, nil))
		if !errors.Is(err, ErrSequenceTooShort) {
			t.Errorf("expected ErrSequenceTooShort, got %v", err)
		}
	})

	t.Run("width_mismatch", func(t *testing.T) {
		_, err := m.Scorer().Score(mat.NewDense(3, 4, nil))
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("start_unit_out_of_range", func(t *testing.T) {
		cfg := smallConfig()
		cfg.StartUnit = 5
		m, err := New(cfg, DefaultSeed)
		if err != nil {
			t.Fatal(err)
		}
		_, err = m.Scorer().Score(mat.NewDense(3, 12, nil))
		if !errors.Is(err, ErrStartUnitOutOfRange) {
			t.Errorf("expected ErrStartUnitOutOfRange, got %v", err)
		}
	})
}

func TestSoftmax(t *testing.T) {
	got := Softmax([]float64{1000, 1000})
	if math.Abs(got[0]-0.5) > eps || math.Abs(got[1]-0.5) > eps {
		t.Errorf("Softmax large equal inputs = %v", got)
	}

	got = Softmax([]float64{0, math.Log(3)})
	if math.Abs(got[0]-0.25) > eps || math.Abs(got[1]-0.75) > eps {
		t.Errorf("Softmax = %v, want [0.25 0.75]", got)
	}

	if len(Softmax(nil)) != 0 {
		t.Error("Softmax(nil) should be empty")
	}
}

func TestHeuristicScorer(t *testing.T) {
	enc := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0, // same direction as previous
		0, 1, // orthogonal: distance 1
		0, 1,
	})
	scores, err := HeuristicScorer{}.Score(enc)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float64{0, 0, 1, 0}
	for i := range want {
		if math.Abs(scores[i]-want[i]) > eps {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}

	t.Run("constant_rows_uniform", func(t *testing.T) {
		enc := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
		scores, err := HeuristicScorer{}.Score(enc)
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scores {
			if math.Abs(s-1.0/3) > eps {
				t.Errorf("scores[%d] = %v, want 1/3", i, s)
			}
		}
	})

	t.Run("repeated_rows_with_rounding_stay_flat", func(t *testing.T) {
		const n = 40
		row := []float64{0.1, 0.7, 0.3, 1, 1, 1, 0.1}
		data := make([]float64, 0, n*len(row))
		for i := 0; i < n; i++ {
			data = append(data, row...)
		}
		scores, err := HeuristicScorer{}.Score(mat.NewDense(n, len(row), data))
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scores {
			if s != scores[0] {
				t.Fatalf("scores[%d] = %v, scores[0] = %v; want a flat profile", i, s, scores[0])
			}
		}
	})

	t.Run("too_short", func(t *testing.T) {
		_, err := HeuristicScorer{}.Score(mat.NewDense(1, 2, nil))
		if !errors.Is(err, ErrSequenceTooShort) {
			t.Errorf("expected ErrSequenceTooShort, got %v", err)
		}
	})
}
