// Package gate decides whether a shell command may be executed. The decision
// is a pure function of two static rule sets: a role-specific allow-set of
// base command names and a shared list of destructive patterns. The gate is a
// syntactic policy filter, not a security boundary.
package gate

import (
	"fmt"
	"regexp"
	"strings"
)

// Policy holds the immutable rule sets for one engine role.
type Policy struct {
	role    string
	allowed map[string]struct{}
	blocked []*regexp.Regexp
}

// destructivePatterns match commands no role may ever run: recursive root
// deletion, raw block-device writes, fork bombs, filesystem creation, and
// shutdown/reboot/init-level changes.
var destructivePatterns = []string{
	`rm\s+-rf\s+/`,
	`dd\s+if=.*of=/dev/`,
	`:[(][)]`,
	`>\s*/dev/sd`,
	`mkfs`,
	`shutdown`,
	`reboot`,
	`init\s+0`,
}

var defensiveTools = []string{
	// Monitoring & detection
	"auditctl", "ausearch", "aureport",
	"ss", "netstat", "lsof", "ps", "top",
	"tcpdump", "tshark",
	"journalctl", "dmesg",
	"last", "lastb", "lastlog", "who", "w",

	// Integrity & scanning
	"aide", "rkhunter", "chkrootkit", "lynis",
	"tripwire",
	"clamscan", "freshclam",

	// Hardening & remediation
	"iptables", "ip6tables", "nft",
	"fail2ban-client",
	"systemctl", "service",
	"chmod", "chown", "chattr",
	"passwd", "usermod", "userdel",
	"visudo",

	// File inspection
	"cat", "head", "tail", "grep", "awk", "sed",
	"find", "ls", "stat", "file", "diff",
	"md5sum", "sha256sum",
	"strings", "xxd",

	// System info
	"id", "whoami", "uname", "hostname",
	"df", "du", "mount",
	"sysctl",

	// Network tools (defensive use)
	"nmap", "ping", "traceroute", "dig", "host",
	"curl", "wget",

	// Package management (for patching)
	"apt", "apt-get", "dpkg",
	"pacman", "yum", "dnf",

	// Basic utilities
	"python3", "python", "bash", "sh",
	"echo", "pwd", "which", "whereis",
	"base64", "date", "wc", "sort", "uniq", "tee",
	"ssh", "scp",
}

var offensiveTools = []string{
	// Network tools
	"ssh", "scp", "nc", "netcat", "nmap", "curl", "wget", "ping", "traceroute",
	"tcpdump", "wireshark", "tshark",

	// Password/hash cracking
	"hydra", "john", "hashcat", "sshpass", "medusa",

	// Web tools
	"nikto", "sqlmap", "dirb", "gobuster", "wfuzz",

	// Exploitation
	"msfconsole", "msfvenom", "metasploit",

	// Wireless
	"aircrack-ng", "airodump-ng", "aireplay-ng",

	// Enumeration
	"enum4linux", "smbclient", "rpcclient", "nbtscan",

	// Basic utilities
	"python3", "python", "bash", "sh", "cat", "echo", "ls", "pwd",
	"id", "whoami", "uname", "find", "grep", "awk", "sed",
	"base64", "xxd", "strings", "file", "which", "whereis",
}

// Defensive returns the policy for the defensive role.
func Defensive() *Policy {
	return newPolicy("defense", defensiveTools, destructivePatterns)
}

// Offensive returns the policy for the offensive role. It additionally blocks
// firewall flushes, which would blind the defending side.
func Offensive() *Policy {
	patterns := append(append([]string{}, destructivePatterns...), `iptables.*-F`)
	return newPolicy("offense", offensiveTools, patterns)
}

func newPolicy(role string, tools, patterns []string) *Policy {
	allowed := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		allowed[tool] = struct{}{}
	}

	blocked := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		blocked = append(blocked, regexp.MustCompile(`(?i)`+pattern))
	}

	return &Policy{role: role, allowed: allowed, blocked: blocked}
}

// Role returns the policy's role name.
func (p *Policy) Role() string {
	return p.role
}

// Approve reports whether command may execute, with the rejection reason when
// it may not. Both the allow-set and destructive-pattern checks are applied;
// failing either blocks the command.
func (p *Policy) Approve(command string) (bool, string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return false, "Empty command"
	}

	// The base name is the final path segment of the first token, so
	// /usr/bin/nmap and nmap gate identically.
	segments := strings.Split(parts[0], "/")
	base := segments[len(segments)-1]

	if _, ok := p.allowed[base]; !ok {
		return false, fmt.Sprintf("Command '%s' not in %s whitelist", base, p.role)
	}

	for _, pattern := range p.blocked {
		if pattern.MatchString(command) {
			return false, fmt.Sprintf("Blocked pattern: %s", pattern.String())
		}
	}

	return true, "OK"
}
