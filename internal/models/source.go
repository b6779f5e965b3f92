package models

import (
	"path/filepath"
	"sort"
	"strings"
)

// Language is the detected language of a source file.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageCPP        Language = "cpp"
	LanguageC          Language = "c"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguagePHP        Language = "php"
	LanguageRuby       Language = "ruby"
	LanguageSwift      Language = "swift"
	LanguageKotlin     Language = "kotlin"
	LanguageUnknown    Language = "unknown"
)

// extensionLanguages maps lower-case file extensions to their language.
var extensionLanguages = map[string]Language{
	".py":    LanguagePython,
	".js":    LanguageJavaScript,
	".jsx":   LanguageJavaScript,
	".ts":    LanguageTypeScript,
	".tsx":   LanguageTypeScript,
	".cpp":   LanguageCPP,
	".cc":    LanguageCPP,
	".hpp":   LanguageCPP,
	".c":     LanguageC,
	".h":     LanguageC,
	".java":  LanguageJava,
	".go":    LanguageGo,
	".rs":    LanguageRust,
	".php":   LanguagePHP,
	".rb":    LanguageRuby,
	".swift": LanguageSwift,
	".kt":    LanguageKotlin,
}

// LanguageForName detects the language from a file name's extension.
// Unsupported extensions yield LanguageUnknown.
func LanguageForName(name string) Language {
	ext := strings.ToLower(filepath.Ext(name))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}

// IsSupportedExtension reports whether the file name carries a supported extension.
func IsSupportedExtension(name string) bool {
	return LanguageForName(name) != LanguageUnknown
}

// SupportedExtensions returns the supported extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SourceFile is a validated, decoded input file. Immutable once ingested.
type SourceFile struct {
	Name      string   `json:"name"`
	Language  Language `json:"language"`
	Content   string   `json:"content"`
	SizeBytes int      `json:"size_bytes"`
}
