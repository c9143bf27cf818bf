package selfrag

import (
	"html"
	"regexp"
	"strings"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// injectionPatterns covers the English instruction-override phrasings seen
// in live traffic.  Matching is case-insensitive against the raw input.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:ignore|disregard)\s+(?:all\s+)?(?:the\s+)?(?:above|previous|below|system|instruction|prompt)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+rule`),
	regexp.MustCompile(`(?i)system\s+override`),
	regexp.MustCompile(`(?i)don'?t\s+follow\s+the\s+instructions`),
	regexp.MustCompile(`(?i)answer\s+as\s+a`),
	regexp.MustCompile(`(?i)forget\s+everything\s+we\s+talked\s+about`),
	regexp.MustCompile(`(?i)previous\s+context\s+is\s+deleted`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)\[\s*system\s*\]`),
}

// injectionPatternsKO is the Korean equivalent set, written with flexible
// whitespace since attackers vary spacing around particles.
var injectionPatternsKO = []*regexp.Regexp{
	regexp.MustCompile(`이전\s*지침을?\s*무시`),
	regexp.MustCompile(`시스템\s*프롬프트를?\s*무시`),
	regexp.MustCompile(`앞의\s*내용은?\s*무시`),
	regexp.MustCompile(`지금부터\s*당신은`),
	regexp.MustCompile(`새로운\s*규칙`),
	regexp.MustCompile(`시스템\s*재설정`),
	regexp.MustCompile(`지침을?\s*따르지\s*마세요`),
	regexp.MustCompile(`대신\s*답변하세요`),
}

const (
	userQueryOpen  = "<user_query>"
	userQueryClose = "</user_query>"
)

// Sandbox validates and escapes raw user ideas before any model call.
type Sandbox struct {
	maxChars int
	log      logging.Logger
}

func NewSandbox(maxChars int, log logging.Logger) *Sandbox {
	return &Sandbox{maxChars: maxChars, log: log.Named("sandbox")}
}

// Sanitize trims, length-caps, screens for injection phrasing, and
// HTML-escapes the idea.  The raw text is never logged; injection records
// carry only a masked snippet.
func (s *Sandbox) Sanitize(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", apperrors.NewValidationError("idea must not be empty")
	}
	if n := len([]rune(trimmed)); n > s.maxChars {
		s.log.Warn("input length exceeded",
			logging.Int("length", n),
			logging.Int("max", s.maxChars),
		)
		return "", apperrors.Newf(apperrors.ErrCodeInputTooLong,
			"input is too long (max %d characters)", s.maxChars)
	}

	for _, set := range [][]*regexp.Regexp{injectionPatterns, injectionPatternsKO} {
		for _, pat := range set {
			if pat.MatchString(trimmed) {
				s.log.Warn("prompt injection attempt blocked",
					logging.String("event", LogEventInjectionDetected),
					logging.String("pattern", pat.String()),
					logging.String("masked_input", maskSnippet(trimmed)),
				)
				return "", apperrors.New(apperrors.ErrCodePromptInjection,
					"malicious input pattern detected")
			}
		}
	}

	return html.EscapeString(trimmed), nil
}

// Wrap embeds sanitized text in the user-query delimiters.  Every prompt
// the pipeline sends to a model routes user text through this; prompts
// contain exactly one such region and no user character outside it.
func Wrap(sanitized string) string {
	return userQueryOpen + "\n" + sanitized + "\n" + userQueryClose
}

// unwrapQuery undoes Wrap and the HTML escaping, recovering plain text
// suitable as a raw search query.  Fallback paths use it so delimiter
// markup never reaches the embedder or the BM25 backend.
func unwrapQuery(wrapped string) string {
	s := strings.TrimSpace(wrapped)
	s = strings.TrimPrefix(s, userQueryOpen)
	s = strings.TrimSuffix(s, userQueryClose)
	return html.UnescapeString(strings.TrimSpace(s))
}

// maskSnippet elides the middle of the input so security logs show enough
// to triage without recording the full text.
func maskSnippet(s string) string {
	r := []rune(s)
	if len(r) <= 30 {
		return s
	}
	return string(r[:15]) + "..." + string(r[len(r)-15:])
}
