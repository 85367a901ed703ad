package admission

import (
	"regexp"
	"strings"
)

// BlockedKeywords is the per-language keyword blocklist (spec.md §4.3).
// Defence-in-depth, not the primary boundary — the sandbox is.
var BlockedKeywords = map[string][]string{
	"python":     {"os.system", "subprocess", "eval(", "exec(", "__import__", "os.popen"},
	"javascript": {"child_process", "require('fs')", "require(\"fs\")", "eval("},
	"typescript": {"child_process", "require('fs')", "require(\"fs\")", "eval("},
	"java":       {"Runtime.getRuntime", "ProcessBuilder"},
	"cpp":        {"system(", "popen(", "fork("},
	"c":          {"system(", "popen(", "fork("},
	"go":         {"os/exec", "syscall.Exec"},
	"rust":       {"std::process::Command"},
}

// BlockedPatterns is the language-independent regex blocklist.
var BlockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)curl\s+.*\|\s*sh`),
	regexp.MustCompile(`(?i)wget\s+.*\|\s*sh`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\};`), // fork bomb
}

var (
	lineComment = map[string]*regexp.Regexp{
		"python": regexp.MustCompile(`#[^\n]*`),
		"go":     regexp.MustCompile(`//[^\n]*`),
		"rust":   regexp.MustCompile(`//[^\n]*`),
		"c":      regexp.MustCompile(`//[^\n]*`),
		"cpp":    regexp.MustCompile(`//[^\n]*`),
	}
	cLikeBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	dqString          = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	sqString          = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	tripleDqString    = regexp.MustCompile(`(?s)"""(?:[^"\\]|\\.)*?"""`)
	backtickTemplate  = regexp.MustCompile("(?s)`(?:[^`\\\\]|\\\\.)*`")
)

var jsLikeLineComment = regexp.MustCompile(`//[^\n]*`)

// Normalize strips comments and replaces string/template literals with
// empty delimiters, reducing false positives on strings that happen to
// contain banned tokens. It is idempotent: Normalize(Normalize(x, L), L)
// == Normalize(x, L) (property 7), since the output never re-introduces
// a comment or string literal that a second pass would further reduce.
func Normalize(code, language string) string {
	out := code

	switch language {
	case "python":
		out = tripleDqString.ReplaceAllString(out, `""`)
		out = lineComment["python"].ReplaceAllString(out, "")
		out = dqString.ReplaceAllString(out, `""`)
		out = sqString.ReplaceAllString(out, `''`)
	case "javascript", "typescript":
		out = cLikeBlockComment.ReplaceAllString(out, "")
		out = jsLikeLineComment.ReplaceAllString(out, "")
		out = backtickTemplate.ReplaceAllString(out, "``")
		out = dqString.ReplaceAllString(out, `""`)
		out = sqString.ReplaceAllString(out, `''`)
	case "java", "cpp", "c", "go", "rust":
		out = cLikeBlockComment.ReplaceAllString(out, "")
		if re, ok := lineComment[language]; ok {
			out = re.ReplaceAllString(out, "")
		}
		out = dqString.ReplaceAllString(out, `""`)
		out = sqString.ReplaceAllString(out, `''`)
	}

	return out
}

// Screen applies the static code screening policy and returns the
// triggering keyword or pattern when rejected, or "" when the code
// passes. It does not itself check size/filename/language shape — that
// is Gateway.CheckSubmission's job (§4.3 items 4-6).
func Screen(code, language string) (rejected bool, detail string) {
	normalized := Normalize(code, language)
	lower := strings.ToLower(normalized)

	for _, kw := range BlockedKeywords[language] {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, kw
		}
	}
	for _, pattern := range BlockedPatterns {
		if pattern.MatchString(normalized) {
			return true, pattern.String()
		}
	}
	return false, ""
}
