package pipeline

import (
	"reflect"
	"testing"

	"stock-forecaster/models"
)

func TestRank_Example(t *testing.T) {
	in := []models.ForecastRecord{
		record("A", 2.5),
		record("B", -1),
		record("C", 5),
		record("D", 0),
		record("E", 3.1),
	}

	got := tickersOf(Rank(in))
	want := []string{"C", "E", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rank() = %v, want %v", got, want)
	}
}

func TestRank_Properties(t *testing.T) {
	tests := []struct {
		name string
		in   []models.ForecastRecord
		want []string
	}{
		{"empty", nil, []string{}},
		{"all non-positive", []models.ForecastRecord{record("A", 0), record("B", -3)}, []string{}},
		{
			"truncates to five",
			[]models.ForecastRecord{
				record("A", 1), record("B", 2), record("C", 3), record("D", 4),
				record("E", 5), record("F", 6), record("G", 7),
			},
			[]string{"G", "F", "E", "D", "C"},
		},
		{
			"ties keep arrival order",
			[]models.ForecastRecord{record("X", 2), record("Y", 3), record("Z", 2), record("W", 2)},
			[]string{"Y", "X", "Z", "W"},
		},
		{"tiny positive kept", []models.ForecastRecord{record("A", 0.0001)}, []string{"A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := Rank(tt.in)
			if ranked == nil {
				t.Fatal("Rank() returned nil")
			}
			if got := tickersOf(ranked); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Rank() = %v, want %v", got, tt.want)
			}
			if len(ranked) > TopN {
				t.Errorf("len = %d, exceeds %d", len(ranked), TopN)
			}
			for i, r := range ranked {
				if r.PredictedChangePct <= 0 {
					t.Errorf("non-positive record %v kept", r)
				}
				if i > 0 && r.PredictedChangePct > ranked[i-1].PredictedChangePct {
					t.Errorf("not descending at %d", i)
				}
			}
		})
	}
}

func TestRank_Idempotent(t *testing.T) {
	in := []models.ForecastRecord{
		record("A", 1.5), record("B", 9), record("C", -2), record("D", 4),
		record("E", 4), record("F", 0.5), record("G", 3),
	}
	once := Rank(in)
	twice := Rank(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Rank(Rank(x)) = %v, want %v", tickersOf(twice), tickersOf(once))
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []models.ForecastRecord{record("A", 1), record("B", 3), record("C", 2)}
	_ = Rank(in)
	if got := tickersOf(in); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("input reordered to %v", got)
	}
}

func TestRankTop(t *testing.T) {
	in := []models.ForecastRecord{record("A", 1), record("B", 3), record("C", 2)}
	if got := tickersOf(RankTop(in, 2)); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("RankTop(2) = %v", got)
	}
	if got := RankTop(in, 0); len(got) != 0 || got == nil {
		t.Errorf("RankTop(0) = %v", got)
	}
}

func TestRankTop_LimitAboveTopN(t *testing.T) {
	in := make([]models.ForecastRecord, 8)
	for i := range in {
		in[i] = record(string(rune('A'+i)), float64(i+1))
	}
	for _, n := range []int{6, 10, -1} {
		if got := RankTop(in, n); len(got) != TopN {
			t.Errorf("RankTop(%d) returned %d records, want %d", n, len(got), TopN)
		}
	}
	if s := NewPipelineState([]string{"A"}, "", 10); s.TopN != TopN {
		t.Errorf("NewPipelineState TopN = %d, want %d", s.TopN, TopN)
	}
}
