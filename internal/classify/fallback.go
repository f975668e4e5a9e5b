package classify

import (
	"strings"
	"unicode"
)

// DefaultComplaint is used when a call carries no summary at all.
const DefaultComplaint = "Emergency Call"

// keywords are checked in priority order.
var keywords = []string{
	"stemi", "nstemi", "mi", "cardiac arrest", "heart attack",
	"stroke", "cva", "seizure", "unconscious", "unresponsive",
	"chest pain", "difficulty breathing", "shortness of breath", "respiratory distress",
	"bleeding", "hemorrhage", "trauma", "head injury", "traumatic injury",
	"fall", "fallen", "fracture", "broken bone",
	"overdose", "od", "poisoning", "allergic reaction", "anaphylaxis",
	"diabetic emergency", "hypoglycemia", "hyperglycemia",
	"abdominal pain", "chest discomfort", "respiratory",
	"burn", "burns", "choking", "obstructed airway",
	"gunshot", "gsw", "stabbing", "penetrating trauma",
	"altered mental status", "ams", "confusion",
}

var acronyms = map[string]bool{
	"stemi": true, "nstemi": true, "mi": true, "cva": true,
	"od": true, "gsw": true, "ams": true, "gcs": true,
}

// Fallback derives a chief complaint from a call summary without any remote
// call. Every medical keyword found (on word boundaries) is listed, joined by
// a bullet; otherwise the first sentence is used when it fits in maxLen runes,
// and finally the summary is cut to maxLen runes.
func Fallback(summary string, maxLen int) string {
	summary = strings.TrimSpace(trimQuotes(strings.TrimSpace(summary)))
	if summary == "" {
		return DefaultComplaint
	}
	if maxLen <= 0 {
		maxLen = 60
	}

	if found := matchKeywords(summary); len(found) > 0 {
		return strings.Join(found, " • ")
	}

	first := summary
	if i := strings.IndexAny(summary, ".!?"); i >= 0 {
		first = summary[:i]
	}
	first = strings.TrimSpace(first)
	if n := len([]rune(first)); n > 0 && n <= maxLen {
		return first
	}

	runes := []rune(summary)
	if len(runes) <= maxLen {
		return summary
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "..."
}

func matchKeywords(summary string) []string {
	words := strings.FieldsFunc(strings.ToLower(summary), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	padded := " " + strings.Join(words, " ") + " "

	var found []string
	var matched []string
	for _, kw := range keywords {
		if !strings.Contains(padded, " "+kw+" ") {
			continue
		}
		duplicate := false
		for _, prev := range matched {
			if strings.Contains(prev, kw) || strings.Contains(kw, prev) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		matched = append(matched, kw)
		found = append(found, titleKeyword(kw))
	}
	return found
}

func titleKeyword(kw string) string {
	parts := strings.Split(kw, " ")
	for i, p := range parts {
		if acronyms[p] {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func trimQuotes(s string) string {
	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if n := len(s); n > 0 && (s[n-1] == '"' || s[n-1] == '\'') {
		s = s[:n-1]
	}
	return s
}
