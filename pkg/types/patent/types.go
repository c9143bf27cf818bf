// Package patent defines the shared patent document and analysis-report
// types exchanged between the retrieval pipeline, the HTTP interface, and
// the persistence layers.
package patent

import (
	"regexp"
	"strings"
)

// PublicationNumber identifies a patent publication (e.g. "KR-20230012345-A").
type PublicationNumber string

// publicationNumberRe matches publication numbers cited in analysis text:
// a two-letter country code, an optional dash, at least four digits, and an
// optional kind code.
var publicationNumberRe = regexp.MustCompile(`\b([A-Z]{2}-?\d{4,}(?:-[A-Z0-9]+)?)\b`)

// ExtractPublicationNumbers returns all publication numbers found in text,
// in order of first appearance, without duplicates.
func ExtractPublicationNumbers(text string) []PublicationNumber {
	seen := make(map[string]bool)
	var out []PublicationNumber
	for _, m := range publicationNumberRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, PublicationNumber(m))
		}
	}
	return out
}

// GooglePatentsURL returns the public document URL for a publication number.
// Spaces and dashes are stripped, matching the Google Patents path scheme.
func GooglePatentsURL(id PublicationNumber) string {
	clean := strings.NewReplacer(" ", "", "-", "").Replace(string(id))
	return "https://patents.google.com/patent/" + clean
}

// Document is a patent document as stored in the search indexes.
type Document struct {
	PublicationNumber PublicationNumber `json:"publication_number"`
	Title             string            `json:"title"`
	Abstract          string            `json:"abstract"`
	Claims            string            `json:"claims"`
	IPCCodes          []string          `json:"ipc_codes,omitempty"`
	Assignee          string            `json:"assignee,omitempty"`
	PublicationDate   string            `json:"publication_date,omitempty"`
}

// MatchesIPCPrefix reports whether any of the document's IPC codes starts
// with one of the given prefixes.  An empty prefix list matches everything.
func (d *Document) MatchesIPCPrefix(prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, code := range d.IPCCodes {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(code, p) {
				return true
			}
		}
	}
	return false
}

// Candidate is a retrieved document with the scores it accumulates on its
// way through the pipeline.  DenseScore and SparseScore come from the two
// search backends, FusedScore from the weighted fusion, RerankScore from
// the cross-encoder (when available), and Grade from the relevance grader.
type Candidate struct {
	Document    Document `json:"document"`
	DenseScore  float64  `json:"dense_score"`
	SparseScore float64  `json:"sparse_score"`
	FusedScore  float64  `json:"fused_score"`
	RerankScore float64  `json:"rerank_score,omitempty"`
	Grade       float64  `json:"grade"`
}

// RiskLevel buckets the overall infringement risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// IsValid reports whether the RiskLevel is one of the known buckets.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskLevelForScore buckets a 0-100 risk score using the given floors.
func RiskLevelForScore(score, mediumFloor, highFloor int) RiskLevel {
	switch {
	case score >= highFloor:
		return RiskHigh
	case score >= mediumFloor:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TopPatent is one cited prior-art entry in an analysis report.
type TopPatent struct {
	ID         PublicationNumber `json:"id"`
	Similarity float64           `json:"similarity"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
}

// AnalysisReport is the structured outcome of the grounded analysis.
// Every TopPatents entry must reference a publication number from the
// survivor set the analyst was shown; anything else is discarded during
// parsing.
type AnalysisReport struct {
	RiskLevel    RiskLevel   `json:"risk_level"`
	RiskScore    int         `json:"risk_score"`
	SimilarCount int         `json:"similar_count"`
	Uniqueness   string      `json:"uniqueness"`
	TopPatents   []TopPatent `json:"top_patents"`
}

// EmptyReport returns the well-formed report used when analysis produced no
// usable output: lowest risk, zero score, no citations.  Callers emit this
// instead of failing the request.
func EmptyReport() AnalysisReport {
	return AnalysisReport{
		RiskLevel:    RiskLow,
		RiskScore:    0,
		SimilarCount: 0,
		TopPatents:   []TopPatent{},
	}
}

// Normalize clamps the score into [0, 100], re-derives the risk level from
// the given floors, recomputes SimilarCount, and guarantees a non-nil
// TopPatents slice.
func (r *AnalysisReport) Normalize(mediumFloor, highFloor int) {
	if r.RiskScore < 0 {
		r.RiskScore = 0
	}
	if r.RiskScore > 100 {
		r.RiskScore = 100
	}
	if r.TopPatents == nil {
		r.TopPatents = []TopPatent{}
	}
	r.SimilarCount = len(r.TopPatents)
	r.RiskLevel = RiskLevelForScore(r.RiskScore, mediumFloor, highFloor)
}
