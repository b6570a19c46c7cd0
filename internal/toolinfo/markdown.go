package toolinfo

import (
	"regexp"
	"strings"
)

var systemReminderRE = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

// MarkdownEscape wraps text in a fenced code block whose fence is longer than
// any backtick run inside text, so the content can never close it early.
func MarkdownEscape(text string) string {
	fence := "```"
	run := 0
	for _, r := range text {
		if r == '`' {
			run++
			if run >= len(fence) {
				fence += "`"
			}
			continue
		}
		run = 0
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return fence + "\n" + text + fence
}

// stripSystemReminders removes runtime-injected reminder blocks from tool
// output before it is displayed.
func stripSystemReminders(text string) string {
	return strings.TrimRight(systemReminderRE.ReplaceAllString(text, ""), "\n")
}

// inlineCode renders s as inline code, choosing a delimiter that cannot
// appear inside it.
func inlineCode(s string) string {
	delim := "`"
	for strings.Contains(s, delim) {
		delim += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		return delim + " " + s + " " + delim
	}
	return delim + s + delim
}
