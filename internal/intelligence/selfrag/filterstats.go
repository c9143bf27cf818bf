package selfrag

import (
	"math"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

// FilterStats records how many candidates a cutoff removed.  The grading
// and analysis stages both report through this one type so the numbers in
// their log records can never drift apart.
type FilterStats struct {
	BeforeFilter   int     `json:"before_filter"`
	AfterFilter    int     `json:"after_filter"`
	FilteredOut    int     `json:"filtered_out"`
	FilterRatioPct float64 `json:"filter_ratio_pct"`
	Threshold      float64 `json:"threshold"`
}

// highFilterRatioPct is the default boundary above which a cutoff record is
// escalated to WARN; Pipeline overrides it from configuration.
const highFilterRatioPct = 80.0

func computeFilterStats(before, after int, threshold float64) FilterStats {
	out := before - after
	ratio := 0.0
	if before > 0 {
		ratio = math.Round(float64(out)/float64(before)*1000) / 10
	}
	return FilterStats{
		BeforeFilter:   before,
		AfterFilter:    after,
		FilteredOut:    out,
		FilterRatioPct: ratio,
		Threshold:      threshold,
	}
}

// emitFilterStats writes the structured cutoff record.  stage is empty for
// the grading cutoff and a StageCritical* label for the analysis cutoff.
// Ratios above warnAbove log at WARN and add a high_cutoff_ratio_warning
// record so alerting can key on a single event name.
func emitFilterStats(log logging.Logger, event, stage string, stats FilterStats, warnAbove float64) {
	fields := []logging.Field{
		logging.String("event", event),
		logging.Int("before_filter", stats.BeforeFilter),
		logging.Int("after_filter", stats.AfterFilter),
		logging.Int("filtered_out", stats.FilteredOut),
		logging.Float64("filter_ratio_pct", stats.FilterRatioPct),
		logging.Float64("threshold", stats.Threshold),
	}
	if stage != "" {
		fields = append(fields, logging.String("stage", stage))
	}

	if stats.FilterRatioPct > warnAbove {
		log.Warn("cutoff removed most candidates", fields...)
		log.Warn("cutoff filter ratio above limit",
			logging.String("event", LogEventHighCutoffRatio),
			logging.Float64("filter_ratio_pct", stats.FilterRatioPct),
			logging.Float64("limit_pct", warnAbove),
		)
		return
	}
	log.Info("cutoff applied", fields...)
}
