package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var quoteAttributionPattern = regexp.MustCompile(`(?i)^on .+ wrote:\s*$`)

// DedupConfig holds the thresholds for the duplicate checks
type DedupConfig struct {
	SimilarityReport      float64 // report a near-match above this
	SimilarityDuplicate   float64 // treat as duplicate above this
	ForwardOverlap        float64 // original-body containment for forward detection
	CCGroupSimilarity     float64 // body similarity for cc-group matches
	QuotedRatio           float64 // quoted share of body that marks a quote-heavy reply
	SuppressQuotedReplies bool    // quote-heavy replies suppress only when enabled
}

// DefaultDedupConfig returns the default detection thresholds
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		SimilarityReport:      0.8,
		SimilarityDuplicate:   0.95,
		ForwardOverlap:        0.7,
		CCGroupSimilarity:     0.9,
		QuotedRatio:           0.8,
		SuppressQuotedReplies: false,
	}
}

// Detector classifies messages against the fingerprint store before admission
type Detector struct {
	store  FingerprintStore
	cfg    DedupConfig
	logger *zap.Logger
}

// NewDetector creates a new duplicate detector
func NewDetector(store FingerprintStore, cfg DedupConfig, logger *zap.Logger) *Detector {
	return &Detector{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Detect runs the duplicate checks in fixed priority order; the first
// definitive match wins. Pure apart from store lookups: it never mutates
// the store.
func (d *Detector) Detect(ctx context.Context, msg *Email) (*DuplicateVerdict, error) {
	fps := FingerprintEmail(msg)

	// Check 1: exact transport identity
	if fps.Identity != "" {
		record, found, err := d.store.Lookup(ctx, fps.Identity)
		if err != nil {
			return nil, fmt.Errorf("identity lookup: %w", err)
		}
		if found {
			return &DuplicateVerdict{
				IsDuplicate: true,
				Kind:        KindExact,
				Original:    record,
				Confidence:  1.0,
				Reasons:     []string{fmt.Sprintf("message identity %q already recorded", msg.MessageID)},
			}, nil
		}
	}

	// Messages we cannot compare by content get a distinct verdict instead
	// of a silent pass; the caller clamps the decision to human review.
	if strings.TrimSpace(msg.Body) == "" || len(msg.Recipients()) == 0 {
		reasons := []string{}
		if strings.TrimSpace(msg.Body) == "" {
			reasons = append(reasons, "empty body: similarity checks skipped")
		}
		if len(msg.Recipients()) == 0 {
			reasons = append(reasons, "no recipients: recipient-set checks skipped")
		}
		return &DuplicateVerdict{
			IsDuplicate: false,
			Kind:        KindUnclassifiable,
			Confidence:  0.0,
			Reasons:     reasons,
		}, nil
	}

	// Check 2: content fingerprint, then token similarity against same sender
	record, found, err := d.store.Lookup(ctx, fps.Content)
	if err != nil {
		return nil, fmt.Errorf("content lookup: %w", err)
	}
	if found {
		return &DuplicateVerdict{
			IsDuplicate: true,
			Kind:        KindContent,
			Original:    record,
			Confidence:  1.0,
			Reasons:     []string{"content fingerprint already recorded"},
		}, nil
	}

	verdict := &DuplicateVerdict{Kind: KindNone}
	msgTokens := Tokenize(msg.Body)

	senderRecords, err := d.store.BySender(ctx, msg.From)
	if err != nil {
		return nil, fmt.Errorf("sender lookup: %w", err)
	}
	var bestMatch *FingerprintRecord
	bestSimilarity := 0.0
	for _, rec := range senderRecords {
		similarity := Jaccard(msgTokens, Tokenize(rec.Message.Body))
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			bestMatch = rec
		}
	}
	if bestMatch != nil && bestSimilarity > d.cfg.SimilarityDuplicate {
		return &DuplicateVerdict{
			IsDuplicate: true,
			Kind:        KindContent,
			Original:    bestMatch,
			Confidence:  bestSimilarity,
			Reasons:     []string{fmt.Sprintf("body %.0f%% similar to earlier message from same sender", bestSimilarity*100)},
		}, nil
	}
	if bestMatch != nil && bestSimilarity > d.cfg.SimilarityReport {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("near-match from same sender (similarity %.2f)", bestSimilarity))
	}

	// Check 3: forward of an already-seen message
	if fps.IsForward {
		chain, err := d.store.BySubject(ctx, fps.CleanSubject)
		if err != nil {
			return nil, fmt.Errorf("forward chain lookup: %w", err)
		}
		for _, rec := range chain {
			overlap := Containment(Tokenize(rec.Message.Body), msgTokens)
			if overlap >= d.cfg.ForwardOverlap {
				return &DuplicateVerdict{
					IsDuplicate: true,
					Kind:        KindForward,
					Original:    rec,
					Confidence:  0.9,
					Reasons: []string{fmt.Sprintf("forward of %q (%.0f%% of original body present)",
						rec.CleanSubject, overlap*100)},
				}, nil
			}
		}
	}

	// Check 4: same CC group, same content
	if fps.RecipientSet != "" {
		group, err := d.store.CCGroup(ctx, fps.RecipientSet)
		if err != nil {
			return nil, fmt.Errorf("cc-group lookup: %w", err)
		}
		if len(group) > 0 {
			similarity := Jaccard(msgTokens, Tokenize(group[0].Message.Body))
			if similarity > d.cfg.CCGroupSimilarity {
				return &DuplicateVerdict{
					IsDuplicate: true,
					Kind:        KindCCGroup,
					Original:    group[0],
					Confidence:  similarity,
					Reasons:     []string{"same recipient group already received this content"},
				}, nil
			}
		}
	}

	// Check 5: quote-heavy reply. Reported in the verdict; suppression only
	// when explicitly configured.
	if ratio := QuotedRatio(msg.Body); ratio > d.cfg.QuotedRatio {
		verdict.Kind = KindQuotedReply
		verdict.Confidence = ratio
		verdict.IsDuplicate = d.cfg.SuppressQuotedReplies
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("%.0f%% of body is quoted content", ratio*100))
		return verdict, nil
	}

	return verdict, nil
}

// QuotedRatio returns the share of the body made up of quoted content.
// Quote markers: ">" and "|" line prefixes, "-----Original Message-----"
// separators and "On ... wrote:" attribution lines. Everything after a
// separator counts as quoted.
func QuotedRatio(body string) float64 {
	if len(body) == 0 {
		return 0.0
	}
	quoted := 0
	inQuotedBlock := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inQuotedBlock:
			quoted += len(line) + 1
		case strings.HasPrefix(trimmed, ">"), strings.HasPrefix(trimmed, "|"):
			quoted += len(line) + 1
		case strings.Contains(trimmed, "-----Original Message-----"),
			quoteAttributionPattern.MatchString(trimmed):
			inQuotedBlock = true
			quoted += len(line) + 1
		}
	}
	ratio := float64(quoted) / float64(len(body)+1)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}

// ExtractUnquoted returns the lines of the body that are not quoted content
func ExtractUnquoted(body string) string {
	var lines []string
	inQuotedBlock := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if inQuotedBlock {
			continue
		}
		if strings.Contains(trimmed, "-----Original Message-----") || quoteAttributionPattern.MatchString(trimmed) {
			inQuotedBlock = true
			continue
		}
		if strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "|") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
