package filter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// CliFilter implements a command-line interface for one-shot triage
type CliFilter struct {
	service *core.TriageService
	logger  *zap.Logger
	verbose bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.TriageService, logger *zap.Logger, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		service: service,
		logger:  logger,
		verbose: verbose,
	}, nil
}

// ProcessEmail triages an email and displays the results
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.TriageResult, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.From))

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.From)
	fmt.Printf("To: %s\n", strings.Join(email.To, ", "))
	if len(email.Cc) > 0 {
		fmt.Printf("Cc: %s\n", strings.Join(email.Cc, ", "))
	}
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.Body))
	if len(email.Attachments) > 0 {
		fmt.Printf("Attachments: %d\n", len(email.Attachments))
	}

	if f.verbose {
		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Printf("\nBody preview:\n%s\n", preview)
	}

	fmt.Printf("\n=== Triage ===\n")
	startTime := time.Now()
	result, err := f.service.Triage(ctx, email)
	if err != nil {
		f.logger.Error("Failed to triage email", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		if result == nil {
			return nil, err
		}
	}
	duration := time.Since(startTime)

	if result.Verdict != nil {
		fmt.Printf("Duplicate: %t", result.Verdict.IsDuplicate)
		if result.Verdict.Kind != core.KindNone {
			fmt.Printf(" (%s, confidence %.2f)", result.Verdict.Kind, result.Verdict.Confidence)
		}
		fmt.Printf("\n")
		for _, reason := range result.Verdict.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
	}

	if result.Suppressed {
		fmt.Printf("Suppressed: message not admitted to the pipeline\n")
		return result, err
	}

	if result.Score != nil {
		fmt.Printf("Complexity score: %d\n", result.Score.Score)
		fmt.Printf("Resource tier: %s\n", tierSummary(result.Tier))
		if f.verbose {
			factors := make([]string, 0, len(result.Score.Breakdown))
			for factor := range result.Score.Breakdown {
				factors = append(factors, factor)
			}
			sort.Strings(factors)
			for _, factor := range factors {
				fmt.Printf("  %s: %.1f\n", factor, result.Score.Breakdown[factor])
			}
		}
	}

	if result.Decision != nil {
		d := result.Decision
		fmt.Printf("\n=== Decision ===\n")
		fmt.Printf("Processing ID: %s\n", d.ProcessingID)
		fmt.Printf("Action: %s\n", d.Action)
		fmt.Printf("State: %s\n", d.State)
		fmt.Printf("Confidence: %.4f\n", d.Confidence)
		fmt.Printf("Requires approval: %t\n", d.RequiresApproval)
		fmt.Printf("Safety checks passed: %t\n", d.Safety.Passed)
		if f.verbose {
			for _, check := range d.Safety.Checks {
				status := "pass"
				if !check.Passed {
					status = "FAIL"
				}
				fmt.Printf("  %s: %s (%s)\n", check.Name, status, check.Reason)
			}
		}
		for _, reason := range d.Reasoning {
			fmt.Printf("  - %s\n", reason)
		}
	}

	fmt.Printf("\nProcessing time: %v\n", duration)

	return result, err
}

func tierSummary(tier core.ResourceTier) string {
	return fmt.Sprintf("%s (unit cost %g)", tier.Name, tier.UnitCost)
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
