package voices

import (
	"regexp"
	"strings"
)

// speakerPrefix matches a speaker label at the start of a line: a short name
// followed by a colon.
var speakerPrefix = regexp.MustCompile(`(?m)^([ \t]*)([\p{L}][\p{L}\p{N} ._'-]{0,31}?):`)

// Speakers returns the distinct speaker labels of script in order of first
// appearance.
func Speakers(script string) []string {
	var speakers []string
	seen := make(map[string]bool)
	for _, m := range speakerPrefix.FindAllStringSubmatch(script, -1) {
		label := strings.TrimSpace(m[2])
		if !seen[label] {
			seen[label] = true
			speakers = append(speakers, label)
		}
	}
	return speakers
}

// Relabel rewrites the speaker prefixes of script so that from[i] is
// labelled to[i]. Lines whose prefix is not a known source host, such as a
// heading or an "Update:" line, keep their text.
//
// With no source hosts the speakers are detected instead, and the i-th
// distinct speaker is labelled to[i]. Speakers beyond len(to) keep their
// label. Only line-leading prefixes change; the spoken text is untouched.
func Relabel(script string, from, to []string) string {
	if len(to) == 0 {
		return script
	}
	if len(from) == 0 {
		from = Speakers(script)
	}
	if len(from) == 0 {
		return script
	}

	mapping := make(map[string]string, len(from))
	for i, label := range from {
		if i < len(to) && to[i] != "" && label != "" {
			mapping[label] = to[i]
		}
	}

	return speakerPrefix.ReplaceAllStringFunc(script, func(prefix string) string {
		m := speakerPrefix.FindStringSubmatch(prefix)
		to, ok := mapping[strings.TrimSpace(m[2])]
		if !ok {
			return prefix
		}
		return m[1] + to + ":"
	})
}
