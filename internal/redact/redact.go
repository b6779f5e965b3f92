// Package redact masks credentials in source text before it leaves the process.
package redact

import "regexp"

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-or-v1-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
}

// Secrets replaces detected secrets in text with Placeholder.
// The output depends only on the input.
func Secrets(text string) string {
	for _, p := range patterns {
		text = p.ReplaceAllLiteralString(text, Placeholder)
	}
	return text
}
