package pipeline

import (
	"cmp"
	"slices"

	"stock-forecaster/models"
)

// TopN is the default number of forecasts kept after ranking
const TopN = 5

// Rank keeps forecasts with a positive predicted change, ordered from the
// largest change down, and returns at most TopN of them.
func Rank(records []models.ForecastRecord) []models.ForecastRecord {
	return RankTop(records, TopN)
}

// RankTop is Rank with a lower limit. Limits outside 0..TopN fall back to
// TopN. Equal changes keep their input order. The result is a new, never nil
// slice.
func RankTop(records []models.ForecastRecord, n int) []models.ForecastRecord {
	if n < 0 || n > TopN {
		n = TopN
	}
	ranked := make([]models.ForecastRecord, 0, len(records))
	for _, r := range records {
		if r.PredictedChangePct > 0 {
			ranked = append(ranked, r)
		}
	}

	slices.SortStableFunc(ranked, func(a, b models.ForecastRecord) int {
		return cmp.Compare(b.PredictedChangePct, a.PredictedChangePct)
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// limitTopN maps a configured limit into 1..TopN
func limitTopN(n int) int {
	if n <= 0 || n > TopN {
		return TopN
	}
	return n
}
