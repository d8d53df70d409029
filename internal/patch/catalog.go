// Package patch resolves, applies, and validates security remediations with
// rollback. Known issue signatures resolve from a static catalog; anything
// else falls back to generated remediation.
package patch

import "regexp"

// ExpectNot777 is the sentinel expected outcome for permission fixes where
// the exact post-fix mode is unpredictable: validation passes on any value
// other than 777. It is matched literally, never generalized into a numeric
// comparison.
const ExpectNot777 = "not 777"

// Entry is one pre-authored remediation. Command templates carry
// {timestamp} and {target_file} placeholders resolved at dispatch time;
// lines starting with # are explanatory and dropped during resolution.
type Entry struct {
	Key              string
	Description      string
	Detect           *regexp.Regexp
	PatchCommands    []string
	RollbackCommands []string
	ValidateCommand  string
	ValidateExpect   string
}

// Catalog is scanned in order; the first entry whose detection signature
// matches the combined finding-description+evidence text wins.
var Catalog = []Entry{
	{
		Key:         "ssh_password_auth",
		Description: "Disable SSH password authentication",
		Detect:      regexp.MustCompile(`(?i)PasswordAuthentication\s+yes`),
		PatchCommands: []string{
			"# Backup current SSH config",
			"cp /etc/ssh/sshd_config /etc/ssh/sshd_config.bak.{timestamp}",
			"# Disable password authentication",
			"sed -i 's/^#*PasswordAuthentication.*/PasswordAuthentication no/' /etc/ssh/sshd_config",
			"# Restart SSH service",
			"systemctl restart sshd",
		},
		RollbackCommands: []string{
			"cp /etc/ssh/sshd_config.bak.{timestamp} /etc/ssh/sshd_config",
			"systemctl restart sshd",
		},
		ValidateCommand: "grep '^PasswordAuthentication' /etc/ssh/sshd_config",
		ValidateExpect:  "PasswordAuthentication no",
	},
	{
		Key:         "ssh_root_login",
		Description: "Disable SSH root login",
		Detect:      regexp.MustCompile(`(?i)PermitRootLogin\s+yes`),
		PatchCommands: []string{
			"cp /etc/ssh/sshd_config /etc/ssh/sshd_config.bak.{timestamp}",
			"sed -i 's/^#*PermitRootLogin.*/PermitRootLogin no/' /etc/ssh/sshd_config",
			"systemctl restart sshd",
		},
		RollbackCommands: []string{
			"cp /etc/ssh/sshd_config.bak.{timestamp} /etc/ssh/sshd_config",
			"systemctl restart sshd",
		},
		ValidateCommand: "grep '^PermitRootLogin' /etc/ssh/sshd_config",
		ValidateExpect:  "PermitRootLogin no",
	},
	{
		Key:         "suid_binary",
		Description: "Remove SUID bit from suspicious binaries",
		Detect:      regexp.MustCompile(`(?i)/tmp/.*suid|/home/.*suid`),
		PatchCommands: []string{
			"# Record current permissions",
			"stat {target_file}",
			"# Remove SUID bit",
			"chmod u-s {target_file}",
		},
		RollbackCommands: []string{
			"chmod u+s {target_file}",
		},
		ValidateCommand: "find {target_file} -perm -4000 2>/dev/null | wc -l",
		ValidateExpect:  "0",
	},
	{
		Key:         "sudo_misconfig",
		Description: "Remove dangerous sudo entries",
		Detect:      regexp.MustCompile(`(?i)NOPASSWD.*(?:cat|find|vi|less|more|bash|sh)`),
		PatchCommands: []string{
			"cp /etc/sudoers /etc/sudoers.bak.{timestamp}",
			"# Comment out dangerous sudo entries (requires visudo-compatible edit)",
			`sed -i '/NOPASSWD.*\(cat\|find\|vi\|less\|more\|bash\|sh\)/s/^/#DISABLED_BY_BLUETEAM# /' /etc/sudoers`,
		},
		RollbackCommands: []string{
			"cp /etc/sudoers.bak.{timestamp} /etc/sudoers",
		},
		ValidateCommand: `grep -c 'NOPASSWD.*\(cat\|find\)' /etc/sudoers`,
		ValidateExpect:  "0",
	},
	{
		Key:         "world_writable",
		Description: "Fix world-writable file permissions",
		Detect:      regexp.MustCompile(`(?i)world.writable|777`),
		PatchCommands: []string{
			"# Record current permissions",
			"stat {target_file}",
			"# Remove world-writable permission",
			"chmod o-w {target_file}",
		},
		RollbackCommands: []string{
			"chmod o+w {target_file}",
		},
		ValidateCommand: "stat -c '%a' {target_file}",
		ValidateExpect:  ExpectNot777,
	},
	{
		Key:         "cron_insecure",
		Description: "Fix insecure cron job permissions",
		Detect:      regexp.MustCompile(`(?i)/etc/cron\.d/.*666|cron.*world`),
		PatchCommands: []string{
			"stat {target_file}",
			"chmod 644 {target_file}",
			"chown root:root {target_file}",
		},
		RollbackCommands: []string{
			"chmod 666 {target_file}",
		},
		ValidateCommand: "stat -c '%a' {target_file}",
		ValidateExpect:  "644",
	},
}
