// Package parser extracts executable shell commands from free-form reasoning
// output. The heuristic is deliberately isolated here: fenced code blocks are
// authoritative when present, and a bare-line scan is the fallback.
package parser

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:bash|sh)?\n(.*?)\n```")

// remediationVerbs are command prefixes that mark a bare line as
// shell-command-shaped during fallback scanning.
var remediationVerbs = []string{
	"sed", "chmod", "chown", "cp", "mv", "systemctl", "iptables",
	"fail2ban", "apt", "pacman", "grep", "cat", "echo", "find",
}

// ExtractCommands returns the shell commands found in text. Fenced
// ```bash/```sh blocks win; only when no block yields a command does the
// bare-line fallback run. Comment lines are never commands.
func ExtractCommands(text string) []string {
	var commands []string

	for _, match := range fencedBlock.FindAllStringSubmatch(text, -1) {
		for _, line := range strings.Split(match[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			commands = append(commands, line)
		}
	}

	if len(commands) > 0 {
		return commands
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if !commandShaped(line) {
			continue
		}
		if clean := strings.TrimLeft(line, "$ -"); clean != "" {
			commands = append(commands, clean)
		}
	}

	return commands
}

// commandShaped reports whether a bare line plausibly is a shell command:
// it starts with a prompt/list marker, contains a path separator, or begins
// with a known remediation verb.
func commandShaped(line string) bool {
	if line[0] == '$' || line[0] == '-' {
		return true
	}
	if strings.Contains(line, "/") {
		return true
	}
	for _, verb := range remediationVerbs {
		if strings.HasPrefix(line, verb) {
			return true
		}
	}
	return false
}

// FirstCommand returns the first extracted command, or "" when text contains
// none.
func FirstCommand(text string) string {
	commands := ExtractCommands(text)
	if len(commands) == 0 {
		return ""
	}
	return commands[0]
}
