package core

import "strings"

// Lexicons holds the fixed term lists the router and the decision engine
// match against. Every list is overridable from configuration so tuning
// never needs a redeploy.
type Lexicons struct {
	// Complexity router
	ComplexityKeywords  []string
	ReasoningIndicators []string

	// Decision engine analysis
	HighStakesTerms       []string
	UrgentPhrases         []string
	SoonPhrases           []string
	RequestPhrases        []string
	NoResponsePhrases     []string
	MeetingPhrases        []string
	InfoRequestPhrases    []string
	ConfirmationPhrases   []string
	AcknowledgmentPhrases []string

	// Safety checks
	FinancialTerms []string
	LegalTerms     []string
	SensitiveTerms []string

	// Senders whose messages pass the delegated safety checks by default
	TrustedSenders []string
}

// DefaultLexicons returns the built-in term lists
func DefaultLexicons() *Lexicons {
	return &Lexicons{
		ComplexityKeywords: []string{
			"budget", "forecast", "invoice", "contract", "proposal", "compliance",
			"architecture", "migration", "incident", "rollout", "integration",
			"negotiation", "roadmap", "strategy", "audit", "procurement",
		},
		ReasoningIndicators: []string{
			"compare", "trade-off", "tradeoff", "pros and cons", "alternative",
			"recommend", "evaluate", "versus", "on the other hand", "however",
			"implications", "depends on", "what if", "scenario", "should we",
		},
		HighStakesTerms: []string{
			"contract", "revenue", "partnership", "legal", "acquisition",
			"merger", "lawsuit", "termination", "breach", "board meeting",
		},
		UrgentPhrases: []string{
			"urgent", "asap", "immediately", "emergency", "critical",
			"right away", "by end of day", "eod today",
		},
		SoonPhrases: []string{
			"soon", "this week", "tomorrow", "by friday", "in the next few days",
			"when you get a chance today",
		},
		RequestPhrases: []string{
			"please", "could you", "can you", "would you", "let me know",
			"need you to", "waiting for your",
		},
		NoResponsePhrases: []string{
			"for your information", "fyi", "no response needed", "no reply needed",
			"no action required", "just so you know",
		},
		MeetingPhrases: []string{
			"meeting", "schedule a call", "calendar", "availability",
			"are you available", "book a time", "let's sync", "catch up",
		},
		InfoRequestPhrases: []string{
			"can you provide", "please send", "where can i find", "what is the status",
			"any update on", "do you have the", "could you share",
		},
		ConfirmationPhrases: []string{
			"please confirm", "can you confirm", "confirming", "confirmation",
			"is this correct", "verify that",
		},
		AcknowledgmentPhrases: []string{
			"thank you", "thanks", "received", "got it", "acknowledged",
			"sounds good", "noted",
		},
		FinancialTerms: []string{
			"payment", "invoice", "budget", "price", "wire transfer", "refund",
			"purchase order", "$", "€", "£",
		},
		LegalTerms: []string{
			"legal", "lawsuit", "attorney", "lawyer", "liability", "litigation",
			"subpoena", "settlement", "nda",
		},
		SensitiveTerms: []string{
			"confidential", "private", "password", "credential", "secret",
			"api key", "ssn", "social security",
		},
	}
}

// ContainsAny reports whether text contains any of the terms, case-insensitively
func ContainsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// CountMatches counts how many of the terms appear in the text, each term
// counted at most once
func CountMatches(text string, terms []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			count++
		}
	}
	return count
}
