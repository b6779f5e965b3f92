package review

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/codereview/internal/models"
)

var (
	bigONormalizer = strings.NewReplacer(
		"²", "^2", "³", "^3", "**", "^",
		"log₂", "log", "log_2", "log", "log2", "log", "log10", "log",
		"lg", "log", "ln", "log",
	)
	wordRe        = regexp.MustCompile(`[a-z]+`)
	expBaseRe     = regexp.MustCompile(`^\d+\^n$`)
	coefficientRe = regexp.MustCompile(`^\d+(?:\.\d+)?([nL].*)$`)
	divisorRe     = regexp.MustCompile(`/\d+`)
	powerRe       = regexp.MustCompile(`n\^(\d+)`)
)

var termClasses = map[string]models.ComplexityClass{
	"1":   models.ComplexityConstant,
	"Ln":  models.ComplexityLogarithmic,
	"n":   models.ComplexityLinear,
	"nLn": models.ComplexityLinearithm,
	"Lnn": models.ComplexityLinearithm,
	"nn":  models.ComplexityQuadratic,
	"nnn": models.ComplexityCubic,
}

// ClassifyBigO maps a Big-O expression such as "O(n log n)" or "n²" to a
// complexity class. Anything it cannot place is ComplexityUnknown.
func ClassifyBigO(expr string) models.ComplexityClass {
	if m := bigORe.FindStringSubmatch(expr); m != nil {
		expr = m[1]
	}
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" || strings.ContainsAny(s, "!√") || strings.Contains(s, "sqrt") {
		return models.ComplexityUnknown
	}
	s = bigONormalizer.Replace(s)
	s = strings.ReplaceAll(s, "log", " L ")
	// Any single-letter variable counts as the input size.
	s = wordRe.ReplaceAllStringFunc(s, func(w string) string {
		if len(w) == 1 {
			return "n"
		}
		return "?"
	})
	s = strings.NewReplacer(" ", "", "*", "", "·", "", "×", "", "(", "", ")", "").Replace(s)
	s = divisorRe.ReplaceAllString(s, "")

	best := models.ComplexityUnknown
	for _, term := range strings.Split(s, "+") {
		c := classifyTerm(term)
		if c == models.ComplexityUnknown {
			return models.ComplexityUnknown
		}
		if c.Rank() > best.Rank() {
			best = c
		}
	}
	return best
}

func classifyTerm(t string) models.ComplexityClass {
	if expBaseRe.MatchString(t) && !strings.HasPrefix(t, "1^") && !strings.HasPrefix(t, "0^") {
		return models.ComplexityExponential
	}
	if m := coefficientRe.FindStringSubmatch(t); m != nil {
		t = m[1]
	}
	t = powerRe.ReplaceAllStringFunc(t, func(p string) string {
		k, err := strconv.Atoi(p[2:])
		if err != nil || k < 1 || k > 3 {
			return "?"
		}
		return strings.Repeat("n", k)
	})
	if c, ok := termClasses[t]; ok {
		return c
	}
	return models.ComplexityUnknown
}

// Analyzer derives per-file complexity estimates from parsed review hints.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze returns exactly one estimate per file, in input order.
func (a *Analyzer) Analyze(parsed models.ParsedReview, files []models.SourceFile) []models.ComplexityEstimate {
	out := make([]models.ComplexityEstimate, 0, len(files))
	for _, f := range files {
		hints := parsed.ComplexityHints[path.Base(f.Name)]
		if len(hints) == 0 && len(files) == 1 {
			hints = parsed.ComplexityHints[unattributedHint]
		}
		est := models.ComplexityEstimate{
			File:  f.Name,
			Time:  models.ComplexityUnknown,
			Space: models.ComplexityUnknown,
		}
		for _, line := range hints {
			timeClass, spaceClass := classifyLine(line)
			if est.Time == models.ComplexityUnknown {
				est.Time = timeClass
			}
			if est.Space == models.ComplexityUnknown {
				est.Space = spaceClass
			}
		}
		out = append(out, est)
	}
	return out
}

// classifyLine returns the first recognized time and space classes on line.
// An expression is a space bound when "space" or "memory" is the closest
// dimension keyword before it.
func classifyLine(line string) (timeClass, spaceClass models.ComplexityClass) {
	timeClass, spaceClass = models.ComplexityUnknown, models.ComplexityUnknown
	prev := 0
	for _, loc := range bigORe.FindAllStringIndex(line, -1) {
		lead := strings.ToLower(line[prev:loc[0]])
		prev = loc[1]

		c := ClassifyBigO(line[loc[0]:loc[1]])
		if c == models.ComplexityUnknown {
			continue
		}
		spaceAt := max(strings.LastIndex(lead, "space"), strings.LastIndex(lead, "memory"))
		if spaceAt >= 0 && spaceAt > strings.LastIndex(lead, "time") {
			if spaceClass == models.ComplexityUnknown {
				spaceClass = c
			}
			continue
		}
		if timeClass == models.ComplexityUnknown {
			timeClass = c
		}
	}
	return timeClass, spaceClass
}
