// Package selfrag implements the self-reflective retrieval pipeline that
// turns a free-text invention idea into a graded prior-art set and a
// grounded infringement analysis.  Stages run strictly forward; the only
// feedback edge is the single query-rewrite round after a weak grading.
package selfrag

import (
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// EventKind identifies an entry in the pipeline's event stream.
type EventKind string

const (
	EventProgress    EventKind = "progress"
	EventStreamToken EventKind = "stream_token"
	EventComplete    EventKind = "complete"
	EventEmpty       EventKind = "empty"
	EventError       EventKind = "error"
)

// Terminal reports whether the kind closes the stream.
func (k EventKind) Terminal() bool {
	switch k {
	case EventComplete, EventEmpty, EventError:
		return true
	}
	return false
}

// Event is one entry in the stream returned by Pipeline.Run.  Data holds
// the kind-specific payload and is what the SSE layer serializes.
type Event struct {
	Kind EventKind
	Data any
}

// ProgressData reports stage transitions as a 0-100 percentage.
type ProgressData struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// TokenData carries one streamed analysis token.
type TokenData struct {
	Text string `json:"text"`
}

// CompleteData carries the final structured report.
type CompleteData struct {
	Result patent.AnalysisReport `json:"result"`
}

// ErrorData carries the stable error code and a caller-safe message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func progressEvent(percent int, message string) Event {
	return Event{Kind: EventProgress, Data: ProgressData{Percent: percent, Message: message}}
}

func tokenEvent(text string) Event {
	return Event{Kind: EventStreamToken, Data: TokenData{Text: text}}
}

func completeEvent(report patent.AnalysisReport) Event {
	return Event{Kind: EventComplete, Data: CompleteData{Result: report}}
}

func emptyEvent() Event {
	return Event{Kind: EventEmpty, Data: struct{}{}}
}

func errorEvent(err error) Event {
	return Event{Kind: EventError, Data: ErrorData{
		Code:    string(apperrors.GetCode(err)),
		Message: apperrors.DefaultMessageForCode(apperrors.GetCode(err)),
	}}
}

// Structured log event names.  Log aggregation keys on the "event" field,
// so these are stable API; renaming one breaks downstream alerting.
const (
	LogEventCutoffFilter         = "cutoff_filter"
	LogEventHighCutoffRatio      = "high_cutoff_ratio_warning"
	LogEventAnalysisCutoffFilter = "analysis_cutoff_filter"
	LogEventRewriteTriggered     = "rewrite_triggered"
	LogEventRetrievalQueryFailed = "retrieval_query_failed"
	LogEventInjectionDetected    = "injection_detected"
	LogEventParseFailed          = "parse_failed"
)

// Stage labels attached to analysis_cutoff_filter records.
const (
	StageCriticalAnalysis       = "critical_analysis"
	StageCriticalAnalysisStream = "critical_analysis_stream"
)
