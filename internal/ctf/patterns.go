package ctf

// DefaultPatterns returns the built-in flag capture rules, ordered so
// the more specific formats match before the generic ones. Patterns are
// data: deployments can replace or extend the list through config
// without recompiling.
func DefaultPatterns() []string {
	return []string{
		// Platform-specific prefixes first, to avoid the generic
		// brace patterns swallowing them.
		`picoCTF\{[^}]*\}`,
		`HTB\{[^}]*\}`,
		`THM\{[^}]*\}`,
		`INTIGRITI\{[^}]*\}`,

		// Standard brace formats.
		`flag\{[^}]*\}`,
		`ctf\{[^}]*\}`,
		`flg\{[^}]*\}`,

		// Alternative delimiters.
		`flag\[[^\]]*\]`,
		`ctf\[[^\]]*\]`,
		`flag\([^)]*\)`,
		`flag<[^>]*>`,

		// Separator formats.
		`flag:[A-Za-z0-9_\-=+/]+`,
		`ctf:[A-Za-z0-9_\-=+/]+`,
		`flag=[A-Za-z0-9_\-=+/]{3,}`,
		`_flag_[A-Za-z0-9_\-]{3,}`,

		// Bare hash digests last; highest false-positive risk.
		`\b[a-f0-9]{32}\b`,
		`\b[a-f0-9]{40}\b`,
		`\b[a-f0-9]{64}\b`,
	}
}
