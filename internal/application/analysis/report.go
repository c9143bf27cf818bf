package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// riskLabelsKO maps risk buckets to the labels used in exported reports.
var riskLabelsKO = map[patent.RiskLevel]string{
	patent.RiskLow:    "낮음",
	patent.RiskMedium: "보통",
	patent.RiskHigh:   "높음",
}

// RenderMarkdown turns a structured analysis report into the downloadable
// markdown document.  Cited patents link to their Google Patents pages.
func RenderMarkdown(report patent.AnalysisReport, generatedAt time.Time) []byte {
	var b strings.Builder

	b.WriteString("# 선행기술 분석 보고서\n\n")
	fmt.Fprintf(&b, "생성일시: %s\n\n", generatedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## 침해 위험도\n\n")
	label := riskLabelsKO[report.RiskLevel]
	if label == "" {
		label = string(report.RiskLevel)
	}
	fmt.Fprintf(&b, "- 위험 등급: **%s** (%s)\n", label, report.RiskLevel)
	fmt.Fprintf(&b, "- 위험 점수: %d / 100\n", report.RiskScore)
	fmt.Fprintf(&b, "- 유사 특허 수: %d건\n\n", report.SimilarCount)

	if report.Uniqueness != "" {
		b.WriteString("## 차별성 분석\n\n")
		b.WriteString(report.Uniqueness)
		b.WriteString("\n\n")
	}

	b.WriteString("## 유사 특허\n\n")
	if len(report.TopPatents) == 0 {
		b.WriteString("유사한 선행 특허가 발견되지 않았습니다.\n")
	} else {
		b.WriteString("| 공개번호 | 유사도 | 제목 |\n")
		b.WriteString("|---|---|---|\n")
		for _, tp := range report.TopPatents {
			fmt.Fprintf(&b, "| [%s](%s) | %.1f%% | %s |\n",
				tp.ID, patent.GooglePatentsURL(tp.ID), tp.Similarity*100, escapeCell(tp.Title))
		}
		b.WriteString("\n")
		for _, tp := range report.TopPatents {
			if tp.Summary == "" {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", tp.ID, tp.Summary)
		}
	}

	b.WriteString("---\n")
	b.WriteString("본 보고서는 자동 분석 결과이며 법률 자문을 대신하지 않습니다.\n")
	return []byte(b.String())
}

// escapeCell keeps patent titles from breaking the markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
