// Package toolinfo maps Claude Code tool invocations and results to
// display descriptors (title, kind, content, locations).
//
// Every function here is pure apart from reading a FileContents cache.
package toolinfo

// Claude Code tool names with dedicated rendering.
const (
	ToolTask            = "Task"
	ToolAgent           = "Agent"
	ToolTaskOutput      = "TaskOutput"
	ToolBash            = "Bash"
	ToolBashOutput      = "BashOutput"
	ToolKillShell       = "KillShell"
	ToolKillBash        = "KillBash"
	ToolRead            = "Read"
	ToolLS              = "LS"
	ToolWrite           = "Write"
	ToolEdit            = "Edit"
	ToolMultiEdit       = "MultiEdit"
	ToolNotebookRead    = "NotebookRead"
	ToolNotebookEdit    = "NotebookEdit"
	ToolGlob            = "Glob"
	ToolGrep            = "Grep"
	ToolWebFetch        = "WebFetch"
	ToolWebSearch       = "WebSearch"
	ToolTodoWrite       = "TodoWrite"
	ToolExitPlanMode    = "ExitPlanMode"
	ToolAskUserQuestion = "AskUserQuestion"
)

// IsProgressList reports whether name is the tool whose input is rendered as
// a plan update rather than a tool call.
func IsProgressList(name string) bool {
	return name == ToolTodoWrite
}

// IsPlanExit reports whether name is the plan-mode exit tool.
func IsPlanExit(name string) bool {
	return name == ToolExitPlanMode
}

// IsQuestion reports whether name is the multi-question tool.
func IsQuestion(name string) bool {
	return name == ToolAskUserQuestion
}

func isReadResult(name string) bool {
	return name == ToolRead || name == ToolNotebookRead
}

func isQuietResult(name string) bool {
	switch name {
	case ToolWrite, ToolEdit, ToolMultiEdit, ToolNotebookEdit, ToolBash:
		return true
	}
	return false
}
