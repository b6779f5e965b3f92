package review

import (
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/joescharf/codereview/internal/models"
)

// unattributedHint keys complexity lines that name no file.
const unattributedHint = ""

var (
	atxHeadingRe    = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.*?)\s*#*\s*$`)
	boldHeadingRe   = regexp.MustCompile(`^\s*(?:\d+[.)]\s*)?(?:\*\*|__)([^*_]+?)(?:\*\*|__)\s*:?\s*$`)
	numberingRe     = regexp.MustCompile(`^\s*(?:\d+(?:\.\d+)*[.)]?|[ivx]+[.)])\s+`)
	leadingNumberRe = regexp.MustCompile(`^(?:\d+ )+`)
	qualifierRe     = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]`)
	bigORe          = regexp.MustCompile(`\bO\(\s*([^()]*(?:\([^()]*\)[^()]*)*)\)`)
	fileNameRe      = buildFileNameRe()
)

// sectionSynonyms maps normalized header text to its section.
var sectionSynonyms = map[string]models.Section{
	"code quality":                 models.SectionQuality,
	"code quality and readability": models.SectionQuality,
	"quality":                      models.SectionQuality,
	"readability":                  models.SectionQuality,
	"code readability":             models.SectionQuality,
	"quality and readability":      models.SectionQuality,

	"modularity and architecture": models.SectionArchitecture,
	"architecture and modularity": models.SectionArchitecture,
	"architecture":                models.SectionArchitecture,
	"modularity":                  models.SectionArchitecture,
	"design":                      models.SectionArchitecture,
	"code structure":              models.SectionArchitecture,

	"potential bugs":   models.SectionBugs,
	"bugs":             models.SectionBugs,
	"bug":              models.SectionBugs,
	"logic errors":     models.SectionBugs,
	"potential issues": models.SectionBugs,
	"bugs and issues":  models.SectionBugs,

	"security":                 models.SectionSecurity,
	"security issues":          models.SectionSecurity,
	"security concerns":        models.SectionSecurity,
	"vulnerabilities":          models.SectionSecurity,
	"security vulnerabilities": models.SectionSecurity,
	"security analysis":        models.SectionSecurity,

	"performance":                models.SectionPerformance,
	"performance analysis":       models.SectionPerformance,
	"performance issues":         models.SectionPerformance,
	"efficiency":                 models.SectionPerformance,
	"complexity analysis":        models.SectionPerformance,
	"performance and complexity": models.SectionPerformance,
	"time and space complexity":  models.SectionPerformance,

	"best practices":                 models.SectionBestPractices,
	"best practice":                  models.SectionBestPractices,
	"conventions":                    models.SectionBestPractices,
	"best practices and conventions": models.SectionBestPractices,

	"suggestions":                 models.SectionSuggestions,
	"improvement suggestions":     models.SectionSuggestions,
	"suggestions for improvement": models.SectionSuggestions,
	"recommendations":             models.SectionSuggestions,
	"improvements":                models.SectionSuggestions,
	"next steps":                  models.SectionSuggestions,
}

func buildFileNameRe() *regexp.Regexp {
	exts := models.SupportedExtensions()
	// Longest first so ".tsx" wins over ".ts".
	sort.SliceStable(exts, func(i, j int) bool { return len(exts[i]) > len(exts[j]) })
	alts := make([]string, len(exts))
	for i, e := range exts {
		alts[i] = regexp.QuoteMeta(strings.TrimPrefix(e, "."))
	}
	return regexp.MustCompile(`(?i)[A-Za-z0-9_\-./\\]*[A-Za-z0-9_\-]\.(?:` + strings.Join(alts, "|") + `)\b`)
}

// Parser splits a free-form review into the recognized sections.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse never fails; text it cannot place lands in Other.
func (p *Parser) Parse(raw string) models.ParsedReview {
	out := models.NewParsedReview()

	bufs := make(map[models.Section]*strings.Builder)
	var other strings.Builder
	var current *models.Section
	inFence := false

	write := func(line string) {
		if current == nil {
			other.WriteString(line)
			other.WriteString("\n")
			return
		}
		b, ok := bufs[*current]
		if !ok {
			b = &strings.Builder{}
			bufs[*current] = b
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			write(line)
			continue
		}
		if !inFence {
			if heading, ok := headerCandidate(line); ok {
				if sec, found := MatchSection(heading); found {
					s := sec
					current = &s
					if b, ok := bufs[s]; ok && b.Len() > 0 {
						b.WriteString("\n")
					}
					continue
				}
			}
		}
		write(line)
	}

	for sec, b := range bufs {
		out.Sections[sec] = strings.TrimSpace(b.String())
	}
	out.Other = strings.TrimSpace(other.String())
	out.ComplexityHints = extractHints(out.Sections[models.SectionPerformance])
	return out
}

// headerCandidate returns the heading text of an ATX heading or an
// entirely bold line.
func headerCandidate(line string) (string, bool) {
	if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := boldHeadingRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// MatchSection maps header text to a section after normalization.
// Bracketed qualifiers such as "(2 found)" are ignored, and a known
// section name followed by "and ..." matches that section.
func MatchSection(heading string) (models.Section, bool) {
	if sec, ok := sectionSynonyms[NormalizeHeading(heading)]; ok {
		return sec, true
	}
	norm := NormalizeHeading(qualifierRe.ReplaceAllString(heading, " "))
	if sec, ok := sectionSynonyms[norm]; ok {
		return sec, true
	}
	best := ""
	for k := range sectionSynonyms {
		if len(k) > len(best) && strings.HasPrefix(norm, k+" and ") {
			best = k
		}
	}
	if best == "" {
		return "", false
	}
	return sectionSynonyms[best], true
}

// NormalizeHeading lowercases heading text and strips markdown, numbering,
// emoji and punctuation.
func NormalizeHeading(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("*", "", "_", " ", "`", "", "&", " and ").Replace(s)
	s = numberingRe.ReplaceAllString(s, "")

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")
	return leadingNumberRe.ReplaceAllString(s, "")
}

// extractHints attributes Big-O lines in the performance section to the
// files they mention.
func extractHints(perf string) map[string][]string {
	hints := make(map[string][]string)
	if perf == "" {
		return hints
	}
	last := unattributedHint
	for _, line := range strings.Split(perf, "\n") {
		names := fileNamesIn(line)
		if bigORe.MatchString(line) {
			targets := names
			if len(targets) == 0 {
				targets = []string{last}
			}
			hint := strings.TrimSpace(line)
			for _, t := range targets {
				hints[t] = append(hints[t], hint)
			}
		}
		if len(names) > 0 {
			last = names[len(names)-1]
		}
	}
	return hints
}

// fileNamesIn returns the distinct base names of files mentioned in line.
func fileNamesIn(line string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range fileNameRe.FindAllString(line, -1) {
		name := path.Base(strings.ReplaceAll(m, `\`, "/"))
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
