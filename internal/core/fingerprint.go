package core

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

const contentFingerprintBodyLen = 500

var replyPrefixPattern = regexp.MustCompile(`(?i)^\s*(re|fwd|fw|forwarded)\s*:\s*`)

var tokenSplitPattern = regexp.MustCompile(`[^\pL\pN]+`)

// Fingerprints are the derived keys a message is indexed under
type Fingerprints struct {
	Identity     string // empty when the transport assigned no identifier
	Content      string
	RecipientSet string // empty when the message has no recipients
	CleanSubject string
	IsForward    bool
}

// FingerprintEmail computes all fingerprint kinds for a message.
// Deterministic: repeated calls on the same message yield the same keys.
func FingerprintEmail(e *Email) Fingerprints {
	clean := CleanSubject(e.Subject)
	return Fingerprints{
		Identity:     IdentityFingerprint(e.MessageID),
		Content:      ContentFingerprint(e),
		RecipientSet: RecipientFingerprint(e),
		CleanSubject: clean,
		IsForward:    IsReplyOrForward(e.Subject),
	}
}

// IdentityFingerprint derives the identity key from the transport message ID
func IdentityFingerprint(messageID string) string {
	if messageID == "" {
		return ""
	}
	return "id:" + hashKey(messageID)
}

// ContentFingerprint derives the content key from sender, normalized subject
// and truncated body
func ContentFingerprint(e *Email) string {
	body := e.Body
	if len(body) > contentFingerprintBodyLen {
		body = body[:contentFingerprintBodyLen]
	}
	material := fold(e.From) + "\x00" + fold(CleanSubject(e.Subject)) + "\x00" + fold(body)
	return "ct:" + hashKey(material)
}

// RecipientFingerprint derives the recipient-set key from the sorted,
// deduplicated recipient list plus the clean subject
func RecipientFingerprint(e *Email) string {
	recipients := e.Recipients()
	if len(recipients) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(recipients))
	normalized := make([]string, 0, len(recipients))
	for _, r := range recipients {
		folded := fold(strings.TrimSpace(r))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		normalized = append(normalized, folded)
	}
	if len(normalized) == 0 {
		return ""
	}
	sort.Strings(normalized)
	material := strings.Join(normalized, ",") + "|" + fold(CleanSubject(e.Subject))
	return "rs:" + hashKey(material)
}

// CleanSubject strips reply/forward prefixes (re:, fwd:, fw:, forwarded:)
// repeatedly and trims the remainder
func CleanSubject(subject string) string {
	s := subject
	for {
		stripped := replyPrefixPattern.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.TrimSpace(s)
}

// IsReplyOrForward reports whether the subject carries a reply/forward prefix
func IsReplyOrForward(subject string) bool {
	return replyPrefixPattern.MatchString(subject)
}

// Tokenize breaks text into the token set used for similarity comparison:
// case-folded words longer than three characters
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range tokenSplitPattern.Split(fold(text), -1) {
		if len(word) > 3 {
			tokens[word] = struct{}{}
		}
	}
	return tokens
}

// Jaccard computes word-level Jaccard similarity between two token sets
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Containment computes the fraction of tokens in sub that also appear in super
func Containment(sub, super map[string]struct{}) float64 {
	if len(sub) == 0 {
		return 0.0
	}
	found := 0
	for token := range sub {
		if _, ok := super[token]; ok {
			found++
		}
	}
	return float64(found) / float64(len(sub))
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func hashKey(material string) string {
	sum := sha256.Sum256([]byte(material))
	return fmt.Sprintf("%x", sum[:16])
}
