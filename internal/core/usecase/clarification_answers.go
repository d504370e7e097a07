package usecase

import (
	"strings"
)

var answerLeadIns = []string{
	"call it ",
	"name it ",
	"title it ",
	"set it to ",
	"make it ",
	"the title is ",
	"the name is ",
	"it should be ",
	"it's ",
	"it is ",
	"use ",
}

// inferAnswers extracts values for missing arguments. Structured answers win; then
// "name: value" lines; then, when exactly one argument is still missing and no line named
// an argument, the whole text.
func inferAnswers(missing []string, structured map[string]any, text string) map[string]any {
	answers := make(map[string]any)
	for _, name := range missing {
		if !isBlankArg(structured, name) {
			answers[name] = structured[name]
		}
	}

	open := unanswered(missing, answers)
	if len(open) == 0 {
		return answers
	}

	pairs := parseAnswerPairs(text)
	matched := false
	for _, name := range open {
		if value, ok := matchPair(name, pairs); ok {
			answers[name] = value
			matched = true
		}
	}

	// Pairs that name no missing argument are part of the value, e.g. "Q3 tender: pumps".
	open = unanswered(missing, answers)
	if len(open) == 1 && !matched {
		if value := cleanAnswer(text); value != "" {
			answers[open[0]] = value
		}
	}
	return answers
}

func unanswered(missing []string, answers map[string]any) []string {
	out := make([]string, 0, len(missing))
	for _, name := range missing {
		if _, ok := answers[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func parseAnswerPairs(text string) map[string]string {
	pairs := make(map[string]string)
	segments := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' })
	for _, segment := range segments {
		key, value, ok := strings.Cut(segment, ":")
		if !ok {
			key, value, ok = strings.Cut(segment, "=")
		}
		if !ok {
			continue
		}
		key = normalizeArgKey(key)
		value = cleanAnswer(value)
		if key == "" || value == "" || strings.Contains(key, " ") {
			continue
		}
		pairs[key] = value
	}
	return pairs
}

func matchPair(argName string, pairs map[string]string) (string, bool) {
	if value, ok := pairs[argName]; ok {
		return value, true
	}
	for key, value := range pairs {
		if strings.HasSuffix(argName, "_"+key) {
			return value, true
		}
	}
	return "", false
}

func normalizeArgKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "-", "_")
	fields := strings.Fields(key)
	if len(fields) > 1 && len(fields) <= 3 {
		return strings.Join(fields, "_")
	}
	return key
}

func cleanAnswer(raw string) string {
	value := strings.TrimSpace(raw)
	lower := strings.ToLower(value)
	for _, prefix := range answerLeadIns {
		if strings.HasPrefix(lower, prefix) {
			value = strings.TrimSpace(value[len(prefix):])
			break
		}
	}
	value = strings.TrimRight(value, ".!")
	value = strings.Trim(value, "\"'“”")
	return strings.TrimSpace(value)
}
