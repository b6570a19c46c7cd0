package toolinfo

import (
	"fmt"
	"strings"

	"github.com/bhandras/delight-acp/internal/wire"
)

// maxDomainsShown bounds the domain lists rendered in web search titles.
const maxDomainsShown = 3

// Info is the display descriptor of a tool invocation.
type Info struct {
	Title     string
	Kind      wire.ToolKind
	Content   []wire.ToolCallContent
	Locations []wire.ToolCallLocation
}

// FromToolUse describes a tool invocation. files may be nil.
func FromToolUse(name string, in Input, files FileContents) Info {
	if in == nil {
		in = Input{}
	}
	switch name {
	case ToolTask, ToolAgent:
		info := Info{Title: firstNonEmpty(in.String("description"), "Task"), Kind: wire.ToolKindThink}
		if prompt := in.String("prompt"); prompt != "" {
			info.Content = []wire.ToolCallContent{wire.TextToolContent(prompt)}
		}
		return info

	case ToolNotebookRead:
		path := in.String("notebook_path")
		return Info{
			Title:     joinTitle("Read Notebook", path),
			Kind:      wire.ToolKindRead,
			Locations: pathLocation(path, nil),
		}

	case ToolNotebookEdit:
		path := in.String("notebook_path")
		info := Info{
			Title:     joinTitle("Edit Notebook", path),
			Kind:      wire.ToolKindEdit,
			Locations: pathLocation(path, nil),
		}
		if src := in.String("new_source"); src != "" {
			info.Content = []wire.ToolCallContent{wire.TextToolContent(src)}
		}
		return info

	case ToolBash:
		cmd := in.String("command")
		info := Info{Title: "Terminal", Kind: wire.ToolKindExecute}
		if cmd != "" {
			info.Title = inlineCode(cmd)
		}
		if desc := in.String("description"); desc != "" {
			info.Content = []wire.ToolCallContent{wire.TextToolContent(desc)}
		}
		return info

	case ToolBashOutput, ToolTaskOutput:
		return Info{Title: "Tail Logs", Kind: wire.ToolKindExecute}

	case ToolKillShell, ToolKillBash:
		return Info{Title: "Kill Process", Kind: wire.ToolKindExecute}

	case ToolRead:
		return readInfo(in)

	case ToolLS:
		path := in.String("path")
		title := "List the current directory's contents"
		if path != "" {
			title = fmt.Sprintf("List the %s directory's contents", inlineCode(path))
		}
		return Info{Title: title, Kind: wire.ToolKindSearch, Locations: pathLocation(path, nil)}

	case ToolEdit, ToolMultiEdit:
		return editInfo(name, in, files)

	case ToolWrite:
		path := in.String("file_path")
		info := Info{
			Title:     joinTitle("Write", path),
			Kind:      wire.ToolKindEdit,
			Locations: pathLocation(path, nil),
		}
		if path != "" {
			info.Content = []wire.ToolCallContent{
				wire.DiffToolContent(path, nil, in.String("content")),
			}
		}
		return info

	case ToolGlob:
		title := "Find"
		path := in.String("path")
		if path != "" {
			title += " " + inlineCode(path)
		}
		if pattern := in.String("pattern"); pattern != "" {
			title += " " + inlineCode(pattern)
		}
		return Info{Title: title, Kind: wire.ToolKindSearch, Locations: pathLocation(path, nil)}

	case ToolGrep:
		return Info{Title: grepLabel(in), Kind: wire.ToolKindSearch}

	case ToolWebFetch:
		info := Info{Title: joinTitle("Fetch", in.String("url")), Kind: wire.ToolKindFetch}
		if prompt := in.String("prompt"); prompt != "" {
			info.Content = []wire.ToolCallContent{wire.TextToolContent(prompt)}
		}
		return info

	case ToolWebSearch:
		title := firstNonEmpty(in.String("query"), "Web search")
		if allowed := in.Strings("allowed_domains"); len(allowed) > 0 {
			title += " (allowed: " + summarizeDomains(allowed) + ")"
		}
		if blocked := in.Strings("blocked_domains"); len(blocked) > 0 {
			title += " (blocked: " + summarizeDomains(blocked) + ")"
		}
		return Info{Title: title, Kind: wire.ToolKindFetch}

	case ToolTodoWrite:
		return Info{Title: todoTitle(in), Kind: wire.ToolKindThink}

	case ToolExitPlanMode:
		info := Info{Title: "Ready to code?", Kind: wire.ToolKindSwitchMode}
		if plan := in.String("plan"); plan != "" {
			info.Content = []wire.ToolCallContent{wire.TextToolContent(plan)}
		}
		return info

	case ToolAskUserQuestion:
		title := "Question"
		if qs := in.Objects("questions"); len(qs) > 0 && qs[0].String("question") != "" {
			title = qs[0].String("question")
		} else if q := in.String("question"); q != "" {
			title = q
		}
		return Info{Title: title, Kind: wire.ToolKindThink}

	default:
		return Info{Title: firstNonEmpty(name, "Unknown Tool"), Kind: wire.ToolKindOther}
	}
}

func readInfo(in Input) Info {
	path := in.String("file_path")
	title := joinTitle("Read", path)
	offset, hasOffset := in.Int("offset")
	limit, hasLimit := in.Int("limit")
	start := 1
	if hasOffset && offset > 0 {
		start = offset
	}
	switch {
	case hasLimit && limit > 0:
		title += fmt.Sprintf(" (%d - %d)", start, start+limit-1)
	case hasOffset && offset > 0:
		title += fmt.Sprintf(" (from line %d)", start)
	}
	var line *int
	if hasOffset && offset > 0 {
		line = &start
	}
	return Info{Title: title, Kind: wire.ToolKindRead, Locations: pathLocation(path, line)}
}

func editInfo(name string, in Input, files FileContents) Info {
	path := in.String("file_path")
	info := Info{Title: joinTitle("Edit", path), Kind: wire.ToolKindEdit}
	if path == "" {
		return info
	}

	// The diff spans the whole cached file when the edits apply to it;
	// otherwise each edit is shown against empty text.
	ops := editOps(name, in)
	var lines []int
	if before, ok := cachedContent(files, path); ok {
		if after, applied := applyEdits(before, ops); applied {
			info.Content = []wire.ToolCallContent{wire.DiffToolContent(path, &before, after)}
			lines = changedLines(before, after)
		}
	}
	if info.Content == nil {
		for _, op := range ops {
			empty := ""
			info.Content = append(info.Content, wire.DiffToolContent(path, &empty, op.newText))
		}
	}

	if len(lines) == 0 {
		info.Locations = pathLocation(path, nil)
		return info
	}
	for _, line := range lines {
		line := line
		info.Locations = append(info.Locations, wire.ToolCallLocation{Path: path, Line: &line})
	}
	return info
}

func cachedContent(files FileContents, path string) (string, bool) {
	if files == nil {
		return "", false
	}
	return files.FileContent(path)
}

func grepLabel(in Input) string {
	var b strings.Builder
	b.WriteString("grep")
	if in.Bool("-i") {
		b.WriteString(" -i")
	}
	if in.Bool("-n") {
		b.WriteString(" -n")
	}
	for _, flag := range []string{"-A", "-B", "-C"} {
		if n, ok := in.Int(flag); ok {
			fmt.Fprintf(&b, " %s %d", flag, n)
		}
	}
	switch in.String("output_mode") {
	case "files_with_matches":
		b.WriteString(" -l")
	case "count":
		b.WriteString(" -c")
	}
	if in.Bool("multiline") {
		b.WriteString(" -P")
	}
	if glob := in.String("glob"); glob != "" {
		fmt.Fprintf(&b, " --include=%q", glob)
	}
	if typ := in.String("type"); typ != "" {
		fmt.Fprintf(&b, " --type=%s", typ)
	}
	fmt.Fprintf(&b, " %q", in.String("pattern"))
	if path := in.String("path"); path != "" {
		b.WriteString(" " + path)
	}
	if n, ok := in.Int("head_limit"); ok {
		fmt.Fprintf(&b, " | head -%d", n)
	}
	return b.String()
}

func summarizeDomains(domains []string) string {
	if len(domains) <= maxDomainsShown {
		return strings.Join(domains, ", ")
	}
	return fmt.Sprintf("%s, +%d more",
		strings.Join(domains[:maxDomainsShown], ", "), len(domains)-maxDomainsShown)
}

func todoTitle(in Input) string {
	todos := in.Objects("todos")
	if len(todos) == 0 {
		return "Update TODOs"
	}
	items := make([]string, 0, len(todos))
	for _, todo := range todos {
		mark := "[ ]"
		switch todo.String("status") {
		case "completed":
			mark = "[x]"
		case "in_progress":
			mark = "[~]"
		}
		items = append(items, mark+" "+todo.String("content"))
	}
	return "Update TODOs: " + strings.Join(items, ", ")
}

// PlanEntries converts progress-list tool input into plan entries.
func PlanEntries(in Input) []wire.PlanEntry {
	todos := in.Objects("todos")
	out := make([]wire.PlanEntry, 0, len(todos))
	for _, todo := range todos {
		status := todo.String("status")
		switch status {
		case "pending", "in_progress", "completed":
		default:
			status = "pending"
		}
		out = append(out, wire.PlanEntry{
			Content:  todo.String("content"),
			Priority: firstNonEmpty(todo.String("priority"), "medium"),
			Status:   status,
		})
	}
	return out
}

func pathLocation(path string, line *int) []wire.ToolCallLocation {
	if path == "" {
		return nil
	}
	return []wire.ToolCallLocation{{Path: path, Line: line}}
}

func joinTitle(verb, subject string) string {
	if subject == "" {
		return verb + " File"
	}
	return verb + " " + subject
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
