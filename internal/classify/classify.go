// Package classify inspects command transcripts for known vulnerability
// signatures. Classification is purely pattern-based: each rule keys on
// command-text substrings combined with output-content tests, and the
// severity assigned by a rule is policy, not heuristic.
package classify

import (
	"fmt"
	"strings"
)

// Finding kinds.
const (
	KindMisconfiguration = "misconfiguration"
	KindVulnerability    = "vulnerability"
	KindInformational    = "informational"
)

// Finding severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

const maxEvidenceLen = 512

// Finding is one suspected security issue extracted from a command result.
// Patched is annotated later by the controller once a remediation lifecycle
// resolves against it; findings are never deleted.
type Finding struct {
	Kind             string `json:"type"`
	Severity         string `json:"severity"`
	Description      string `json:"description"`
	AttackTechnique  string `json:"attack_technique"`
	DefenseTechnique string `json:"defense_technique"`
	Evidence         string `json:"evidence"`
	Patched          bool   `json:"patched"`
}

// Critical reports whether the finding demands immediate remediation.
func (f *Finding) Critical() bool {
	return f.Severity == SeverityCritical || f.Severity == SeverityHigh
}

// Classify inspects one (command, output, exit code) triple and returns the
// finding it signals, or nil. Failing commands carry no reliable signal, so
// a nonzero exit code always yields nil. Rules apply in a fixed order and
// the first match wins.
func Classify(command, output string, exitCode int) *Finding {
	if exitCode != 0 {
		return nil
	}

	if f := sshConfig(command, output); f != nil {
		return f
	}
	if f := suidBinaries(command, output); f != nil {
		return f
	}
	if f := sudoPolicy(command, output); f != nil {
		return f
	}
	if f := worldWritable(command, output); f != nil {
		return f
	}
	return shellAccounts(command, output)
}

func sshConfig(command, output string) *Finding {
	if !strings.Contains(command, "sshd_config") && !strings.Contains(strings.ToLower(command), "ssh") {
		return nil
	}

	if strings.Contains(output, "PasswordAuthentication yes") {
		return &Finding{
			Kind:             KindMisconfiguration,
			Severity:         SeverityCritical,
			Description:      "SSH password authentication enabled (brute force attack vector)",
			AttackTechnique:  "T1110 - Brute Force",
			DefenseTechnique: "D3-MAN - Multi-factor Authentication",
			Evidence:         "PasswordAuthentication yes in sshd_config",
		}
	}
	if strings.Contains(output, "PermitRootLogin yes") {
		return &Finding{
			Kind:             KindMisconfiguration,
			Severity:         SeverityCritical,
			Description:      "SSH root login permitted (direct root access attack vector)",
			AttackTechnique:  "T1078 - Valid Accounts",
			DefenseTechnique: "D3-ACH - Account Hardening",
			Evidence:         "PermitRootLogin yes in sshd_config",
		}
	}
	return nil
}

// suidBinaries flags SUID binaries outside the standard system directories.
func suidBinaries(command, output string) *Finding {
	if !strings.Contains(command, "find") || !strings.Contains(command, "-perm") || !strings.Contains(command, "4000") {
		return nil
	}

	var suspicious []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, prefix := range []string{"/tmp/", "/home/", "/var/tmp/"} {
			if strings.Contains(line, prefix) {
				suspicious = append(suspicious, line)
				break
			}
		}
	}
	if len(suspicious) == 0 {
		return nil
	}

	return &Finding{
		Kind:             KindVulnerability,
		Severity:         SeverityHigh,
		Description:      fmt.Sprintf("Suspicious SUID binaries found: %s", strings.Join(suspicious, ", ")),
		AttackTechnique:  "T1548.001 - Abuse Elevation Control: SUID",
		DefenseTechnique: "D3-FE - File Encryption / Permission Hardening",
		Evidence:         excerpt(output),
	}
}

func sudoPolicy(command, output string) *Finding {
	if !strings.Contains(command, "sudoers") && !strings.Contains(command, "sudo -l") {
		return nil
	}

	var dangerous []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		lower := strings.ToLower(line)
		for _, marker := range []string{"nopasswd", "all=(all)", "/bin/cat", "/bin/find", "/usr/bin/find"} {
			if strings.Contains(lower, marker) {
				dangerous = append(dangerous, strings.TrimSpace(line))
				break
			}
		}
	}
	if len(dangerous) == 0 {
		return nil
	}
	if len(dangerous) > 3 {
		dangerous = dangerous[:3]
	}

	return &Finding{
		Kind:             KindMisconfiguration,
		Severity:         SeverityHigh,
		Description:      fmt.Sprintf("Dangerous sudo configuration: %s", strings.Join(dangerous, "; ")),
		AttackTechnique:  "T1548.003 - Sudo and Sudo Caching",
		DefenseTechnique: "D3-ACH - Account Hardening",
		Evidence:         excerpt(output),
	}
}

func worldWritable(command, output string) *Finding {
	if !strings.Contains(command, "find") {
		return nil
	}
	if !strings.Contains(command, "777") && !strings.Contains(command, "-writable") &&
		!strings.Contains(strings.ToLower(command), "world") {
		return nil
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	if len(files) == 0 {
		return nil
	}
	listed := files
	if len(listed) > 5 {
		listed = listed[:5]
	}

	return &Finding{
		Kind:             KindVulnerability,
		Severity:         SeverityMedium,
		Description:      fmt.Sprintf("World-writable files found: %s", strings.Join(listed, ", ")),
		AttackTechnique:  "T1222 - File and Directory Permissions Modification",
		DefenseTechnique: "D3-FE - File Permission Hardening",
		Evidence:         excerpt(output),
	}
}

// shellAccounts reports non-root accounts with an interactive shell seen in
// passwd/shadow enumeration output. Informational only.
func shellAccounts(command, output string) *Finding {
	if !strings.Contains(command, "/etc/passwd") && !strings.Contains(command, "/etc/shadow") {
		return nil
	}
	if output == "" || strings.Contains(strings.ToLower(command), "password") {
		return nil
	}

	var shellUsers []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "/bin/bash") {
			continue
		}
		if strings.Contains(strings.Split(line, ":")[0], "root") {
			continue
		}
		shellUsers = append(shellUsers, line)
	}
	if len(shellUsers) == 0 {
		return nil
	}
	evidence := shellUsers
	if len(evidence) > 5 {
		evidence = evidence[:5]
	}

	return &Finding{
		Kind:             KindInformational,
		Severity:         SeverityLow,
		Description:      fmt.Sprintf("Users with shell access: %d found", len(shellUsers)),
		AttackTechnique:  "T1078.003 - Local Accounts",
		DefenseTechnique: "D3-UAM - User Account Management",
		Evidence:         excerpt(strings.Join(evidence, "\n")),
	}
}

func excerpt(output string) string {
	if len(output) > maxEvidenceLen {
		return output[:maxEvidenceLen]
	}
	return output
}
