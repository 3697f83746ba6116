package core

import (
	"math"
	"regexp"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Scoring factor weights. They sum to 1.0 so the composite lands in 0-100.
const (
	weightSubjectLength  = 0.15
	weightBodyLength     = 0.25
	weightAttachments    = 0.10
	weightURLs           = 0.05
	weightKeywords       = 0.15
	weightReasoning      = 0.30
	urlPointsPer         = 3
	urlCountCap          = 10
	keywordPointsPer     = 4
	keywordPointsCap     = 20
	reasoningPointsPer   = 6
	reasoningPointsCap   = 30
	attachmentPoints     = 10
)

// Scorer assigns complexity scores to messages. Stateless and safe for
// arbitrary concurrency.
type Scorer struct {
	lexicons *Lexicons
}

// NewScorer creates a new complexity scorer
func NewScorer(lexicons *Lexicons) *Scorer {
	if lexicons == nil {
		lexicons = DefaultLexicons()
	}
	return &Scorer{lexicons: lexicons}
}

// Score computes the 0-100 complexity composite for a message.
// A deterministic function of message content only.
func (s *Scorer) Score(msg *Email) *ComplexityScore {
	text := msg.Subject + " " + msg.Body

	factors := []struct {
		name   string
		weight float64
		raw    float64
		max    float64
	}{
		{"subject_length", weightSubjectLength, subjectLengthScore(msg.Subject), 2},
		{"body_length", weightBodyLength, bodyLengthScore(msg.Body), 3},
		{"has_attachments", weightAttachments, attachmentScore(msg), attachmentPoints},
		{"url_count", weightURLs, urlScore(msg.Body), urlPointsPer * urlCountCap},
		{"keyword_density", weightKeywords, keywordScore(text, s.lexicons.ComplexityKeywords), keywordPointsCap},
		{"reasoning_indicators", weightReasoning, reasoningScore(text, s.lexicons.ReasoningIndicators), reasoningPointsCap},
	}

	breakdown := make(map[string]float64, len(factors))
	total := 0.0
	for _, f := range factors {
		contribution := f.weight * 100 * (f.raw / f.max)
		breakdown[f.name] = contribution
		total += contribution
	}

	score := int(math.Round(total))
	if score > 100 {
		score = 100
	}
	return &ComplexityScore{Score: score, Breakdown: breakdown}
}

// SelectTier maps a complexity score to a resource tier. Stable: re-scoring
// an unmodified message always yields the same tier.
func SelectTier(score int) ResourceTier {
	switch {
	case score <= 30:
		return TierSimple
	case score <= 60:
		return TierStandard
	default:
		return TierComplex
	}
}

func subjectLengthScore(subject string) float64 {
	switch {
	case len(subject) > 100:
		return 2
	case len(subject) > 50:
		return 1
	default:
		return 0
	}
}

func bodyLengthScore(body string) float64 {
	switch {
	case len(body) > 2000:
		return 3
	case len(body) > 1000:
		return 2
	case len(body) > 500:
		return 1
	default:
		return 0
	}
}

func attachmentScore(msg *Email) float64 {
	if len(msg.Attachments) > 0 {
		return attachmentPoints
	}
	return 0
}

func urlScore(body string) float64 {
	count := len(urlPattern.FindAllString(body, urlCountCap+1))
	if count > urlCountCap {
		count = urlCountCap
	}
	return float64(count * urlPointsPer)
}

func keywordScore(text string, keywords []string) float64 {
	points := CountMatches(text, keywords) * keywordPointsPer
	if points > keywordPointsCap {
		points = keywordPointsCap
	}
	return float64(points)
}

func reasoningScore(text string, indicators []string) float64 {
	points := CountMatches(text, indicators) * reasoningPointsPer
	if points > reasoningPointsCap {
		points = reasoningPointsCap
	}
	return float64(points)
}
