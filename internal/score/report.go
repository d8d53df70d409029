package score

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const frameworkVersion = "1.0.0"

// Summary renders the competition result as a fixed-width text report.
func Summary(result Result) string {
	var b strings.Builder
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "         ADVERSARIAL SECURITY COMPETITION - RESULTS\n")
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "  Mode: %s\n", strings.ToUpper(result.Mode))
	fmt.Fprintf(&b, "  Date: %s\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	rs := result.Red.Scores
	fmt.Fprintf(&b, "%s\n  RED TEAM (Offensive)\n%s\n", thin, thin)
	fmt.Fprintf(&b, "  Time to Access:    %6.2f\n", rs.TimeToAccess)
	fmt.Fprintf(&b, "  Time to Root:      %6.2f\n", rs.TimeToRoot)
	fmt.Fprintf(&b, "  Efficiency:        %6.2f\n", rs.Efficiency)
	fmt.Fprintf(&b, "  Stealth:           %6.2f\n", rs.Stealth)
	fmt.Fprintf(&b, "  Objectives:        %6.2f\n", rs.Objectives)
	fmt.Fprintf(&b, "  TOTAL:             %6.2f / %.0f\n", rs.Total, rs.MaxPossible)
	fmt.Fprintf(&b, "  PERCENTAGE:        %5.1f%%\n\n", result.Red.Percentage)

	bs := result.Blue.Scores
	fmt.Fprintf(&b, "%s\n  BLUE TEAM (Defensive)\n%s\n", thin, thin)
	fmt.Fprintf(&b, "  Detection Speed:   %6.2f\n", bs.DetectionSpeed)
	fmt.Fprintf(&b, "  Patch Coverage:    %6.2f\n", bs.PatchCoverage)
	fmt.Fprintf(&b, "  Patch Quality:     %6.2f\n", bs.PatchQuality)
	fmt.Fprintf(&b, "  Accuracy:          %6.2f\n", bs.Accuracy)
	fmt.Fprintf(&b, "  Hardening:         %6.2f\n", bs.Hardening)
	fmt.Fprintf(&b, "  TOTAL:             %6.2f / %.0f\n", bs.Total, bs.MaxPossible)
	fmt.Fprintf(&b, "  PERCENTAGE:        %5.1f%%\n\n", result.Blue.Percentage)

	fmt.Fprintf(&b, "%s\n", rule)
	switch result.Winner {
	case "red":
		fmt.Fprintf(&b, "  WINNER: RED TEAM (Offense wins by %.1f%%)\n", result.Margin)
		fmt.Fprintf(&b, "  The attackers breached defenses faster than the defenders could patch.\n")
	case "blue":
		fmt.Fprintf(&b, "  WINNER: BLUE TEAM (Defense wins by %.1f%%)\n", result.Margin)
		fmt.Fprintf(&b, "  The defenders detected and patched vulnerabilities effectively.\n")
	default:
		fmt.Fprintf(&b, "  RESULT: DRAW\n")
		fmt.Fprintf(&b, "  Red and blue teams performed equally.\n")
	}
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}

// Markdown renders the competition result as a Markdown report.
func Markdown(result Result) string {
	rs := result.Red.Scores
	bs := result.Blue.Scores
	w := DefaultWeights()

	lines := []string{
		"# Adversarial Security Competition Report",
		"",
		fmt.Sprintf("**Date**: %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		fmt.Sprintf("**Mode**: %s", result.Mode),
		"",
		"## Red Team (Offensive)",
		"",
		"| Metric | Score | Weight |",
		"|--------|------:|-------:|",
		fmt.Sprintf("| Time to Access | %.2f | %.0f |", rs.TimeToAccess, w.Red.TimeToAccess),
		fmt.Sprintf("| Time to Root | %.2f | %.0f |", rs.TimeToRoot, w.Red.TimeToRoot),
		fmt.Sprintf("| Efficiency | %.2f | %.0f |", rs.Efficiency, w.Red.Efficiency),
		fmt.Sprintf("| Stealth | %.2f | %.0f |", rs.Stealth, w.Red.Stealth),
		fmt.Sprintf("| Objectives | %.2f | %.0f |", rs.Objectives, w.Red.Objectives),
		fmt.Sprintf("| **Total** | **%.2f** | **%.0f** |", rs.Total, rs.MaxPossible),
		fmt.Sprintf("| **Percentage** | **%.1f%%** | |", result.Red.Percentage),
		"",
		"## Blue Team (Defensive)",
		"",
		"| Metric | Score | Weight |",
		"|--------|------:|-------:|",
		fmt.Sprintf("| Detection Speed | %.2f | %.0f |", bs.DetectionSpeed, w.Blue.DetectionSpeed),
		fmt.Sprintf("| Patch Coverage | %.2f | %.0f |", bs.PatchCoverage, w.Blue.PatchCoverage),
		fmt.Sprintf("| Patch Quality | %.2f | %.0f |", bs.PatchQuality, w.Blue.PatchQuality),
		fmt.Sprintf("| Accuracy | %.2f | %.0f |", bs.Accuracy, w.Blue.Accuracy),
		fmt.Sprintf("| Hardening | %.2f | %.0f |", bs.Hardening, w.Blue.Hardening),
		fmt.Sprintf("| **Total** | **%.2f** | **%.0f** |", bs.Total, bs.MaxPossible),
		fmt.Sprintf("| **Percentage** | **%.1f%%** | |", result.Blue.Percentage),
		"",
		"## Result",
		"",
	}

	switch result.Winner {
	case "red":
		lines = append(lines, fmt.Sprintf("**Winner: Red Team** (offense wins by %.1f%%)", result.Margin))
	case "blue":
		lines = append(lines, fmt.Sprintf("**Winner: Blue Team** (defense wins by %.1f%%)", result.Margin))
	default:
		lines = append(lines, "**Result: Draw**")
	}

	return strings.Join(lines, "\n")
}

// WriteJSON saves the result with report metadata as indented JSON.
func WriteJSON(result Result, path string) error {
	output := struct {
		Metadata struct {
			GeneratedAt      string `json:"generated_at"`
			FrameworkVersion string `json:"framework_version"`
		} `json:"metadata"`
		Result Result `json:"result"`
	}{Result: result}
	output.Metadata.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	output.Metadata.FrameworkVersion = frameworkVersion

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
