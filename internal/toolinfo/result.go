package toolinfo

import (
	"fmt"
	"strings"

	"github.com/bhandras/delight-acp/internal/wire"
)

// Update is the display refresh derived from a tool result or enrichment.
type Update struct {
	Title     string
	Content   []wire.ToolCallContent
	Locations []wire.ToolCallLocation
}

// Empty reports whether the update carries nothing to display.
func (u Update) Empty() bool {
	return u.Title == "" && len(u.Content) == 0 && len(u.Locations) == 0
}

// IsErrorResult reports whether a tool-result block is flagged as a failure.
func IsErrorResult(result wire.ContentBlock) bool {
	if result.Bool("is_error") {
		return true
	}
	if obj, ok := result.Field("content").(map[string]any); ok {
		typ, _ := obj["type"].(string)
		return strings.HasSuffix(typ, "_error")
	}
	return false
}

// ResultTexts returns the displayable text items of a tool-result block, in
// order.
func ResultTexts(result wire.ContentBlock) []string {
	switch content := result.Field("content").(type) {
	case string:
		if content == "" {
			return nil
		}
		return []string{content}
	case []any:
		var out []string
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := block["type"].(string)
			switch typ {
			case "text":
				if text, _ := block["text"].(string); text != "" {
					out = append(out, text)
				}
			case "web_search_result":
				title, _ := block["title"].(string)
				url, _ := block["url"].(string)
				out = append(out, fmt.Sprintf("[%s](%s)", firstNonEmpty(title, url), url))
			}
		}
		return out
	case map[string]any:
		if code, _ := content["error_code"].(string); code != "" {
			return []string{code}
		}
		if text, _ := content["text"].(string); text != "" {
			return []string{text}
		}
	}
	return nil
}

// FromToolResult derives the display update for a tool result.
func FromToolResult(name string, in Input, result wire.ContentBlock) Update {
	failed := IsErrorResult(result)
	texts := ResultTexts(result)

	switch {
	case IsPlanExit(name):
		return Update{Title: "Exited Plan Mode"}

	case IsQuestion(name):
		if len(texts) == 0 {
			return Update{Title: "Answer received"}
		}
		return Update{
			Title:   "Answer received",
			Content: []wire.ToolCallContent{wire.TextToolContent(texts[0])},
		}

	case isReadResult(name) && !failed:
		text := stripSystemReminders(strings.Join(texts, "\n"))
		if text == "" {
			return Update{}
		}
		return Update{Content: []wire.ToolCallContent{wire.TextToolContent(MarkdownEscape(text))}}

	case failed:
		text := strings.Join(texts, "\n")
		if text == "" {
			return Update{}
		}
		return Update{Content: []wire.ToolCallContent{wire.TextToolContent(MarkdownEscape(text))}}

	case isQuietResult(name):
		return Update{}

	default:
		var out Update
		for _, text := range texts {
			out.Content = append(out.Content, wire.TextToolContent(text))
		}
		return out
	}
}

// Enrichment is the display update and cache side information derived from
// a post-execution hook response.
type Enrichment struct {
	Update

	// FilePath and FileText are set when the response carries the complete
	// text of a file.
	FilePath string
	FileText string
}

// HasFile reports whether the enrichment carries full file text.
func (e Enrichment) HasFile() bool {
	return e.FilePath != ""
}

// FromHookResponse derives an enrichment from a PostToolUse hook response.
func FromHookResponse(name string, in Input, response any) Enrichment {
	resp := AsInput(response)
	switch name {
	case ToolRead:
		file, _ := resp["file"].(map[string]any)
		if file == nil {
			return Enrichment{}
		}
		f := Input(file)
		path := firstNonEmpty(f.String("filePath"), in.String("file_path"))
		start, _ := f.Int("startLine")
		num, hasNum := f.Int("numLines")
		total, hasTotal := f.Int("totalLines")
		complete := start <= 1 && (!hasTotal || (hasNum && num >= total))
		if path == "" || !complete {
			return Enrichment{}
		}
		return Enrichment{FilePath: path, FileText: f.String("content")}

	case ToolEdit, ToolMultiEdit, ToolWrite:
		path := firstNonEmpty(resp.String("filePath"), in.String("file_path"))
		if path == "" {
			return Enrichment{}
		}
		var out Enrichment
		for _, hunk := range resp.Objects("structuredPatch") {
			if line, ok := hunk.Int("newStart"); ok {
				line := line
				out.Locations = append(out.Locations, wire.ToolCallLocation{Path: path, Line: &line})
			}
		}
		switch {
		case name == ToolWrite && in.String("content") != "":
			out.FilePath, out.FileText = path, in.String("content")
		case resp.String("originalFile") != "":
			if after, ok := applyEdits(resp.String("originalFile"), editOps(name, in)); ok {
				out.FilePath, out.FileText = path, after
			}
		}
		return out
	}
	return Enrichment{}
}
