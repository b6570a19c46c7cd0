package permission

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is a tool classification used by the mode allow-lists.
type Class string

const (
	// ClassRead covers tools that only read files.
	ClassRead Class = "read"
	// ClassWrite covers tools that create or modify files.
	ClassWrite Class = "write"
	// ClassShell covers command execution.
	ClassShell Class = "shell"
	// ClassSearch covers file, content and web lookups.
	ClassSearch Class = "search"
	// ClassAgent covers sub-agents and session bookkeeping tools.
	ClassAgent Class = "agent"
)

// Readiness configures the plan readiness heuristic.
type Readiness struct {
	// MinLength is the minimum trimmed plan length in characters.
	MinLength int `yaml:"min_length"`
	// HeadingPattern must match somewhere in the plan.
	HeadingPattern string `yaml:"heading_pattern"`
}

// Rules is the static policy data: tool classes, the plan-mode shell
// allow-list and the plan readiness thresholds.
type Rules struct {
	Read           []string  `yaml:"read"`
	Write          []string  `yaml:"write"`
	Shell          []string  `yaml:"shell"`
	Search         []string  `yaml:"search"`
	Agent          []string  `yaml:"agent"`
	PlanShellAllow []string  `yaml:"plan_shell_allow"`
	Readiness      Readiness `yaml:"readiness"`
}

// DefaultRules returns the built-in policy data for Claude Code tools.
func DefaultRules() Rules {
	return Rules{
		Read:   []string{"Read", "NotebookRead", "LS"},
		Write:  []string{"Write", "Edit", "MultiEdit", "NotebookEdit"},
		Shell:  []string{"Bash"},
		Search: []string{"Glob", "Grep", "WebFetch", "WebSearch"},
		Agent: []string{
			"Task", "Agent", "TodoWrite", "TaskOutput", "BashOutput",
			"KillShell", "KillBash",
		},
		PlanShellAllow: append([]string(nil), defaultPlanShellAllow...),
		Readiness: Readiness{
			MinLength:      40,
			HeadingPattern: `(?m)^#{1,6}[ \t]*[^\s#]`,
		},
	}
}

var defaultPlanShellAllow = []string{
	"ls", "pwd", "cat", "head", "tail", "less", "more", "wc", "file", "stat",
	"find", "grep", "egrep", "fgrep", "rg", "ag", "ack", "tree", "du", "df",
	"which", "whereis", "type", "echo", "printf", "env", "printenv", "date",
	"uname", "whoami", "id", "hostname", "uptime", "ps", "sort", "uniq",
	"cut", "diff", "cmp", "md5sum", "sha1sum", "sha256sum", "shasum", "jq",
	"yq", "basename", "dirname", "realpath", "readlink", "nl", "strings",
	"xxd", "hexdump", "od", "column", "tokei", "cloc",
	"git status", "git log", "git diff", "git show", "git branch",
	"git blame", "git remote", "git rev-parse", "git ls-files", "git tag",
	"go version", "go env", "go list", "go doc", "node --version",
	"npm ls", "npm view", "python --version", "python3 --version",
	"cargo tree",
}

// LoadRules reads rules from a YAML file. Keys absent from the file keep
// their DefaultRules value; an empty path returns DefaultRules.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML policy data over DefaultRules.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("parse policy file: %w", err)
	}
	if file.Read != nil {
		rules.Read = file.Read
	}
	if file.Write != nil {
		rules.Write = file.Write
	}
	if file.Shell != nil {
		rules.Shell = file.Shell
	}
	if file.Search != nil {
		rules.Search = file.Search
	}
	if file.Agent != nil {
		rules.Agent = file.Agent
	}
	if file.PlanShellAllow != nil {
		rules.PlanShellAllow = file.PlanShellAllow
	}
	if file.Readiness.MinLength > 0 {
		rules.Readiness.MinLength = file.Readiness.MinLength
	}
	if file.Readiness.HeadingPattern != "" {
		rules.Readiness.HeadingPattern = file.Readiness.HeadingPattern
	}
	if _, err := regexp.Compile(rules.Readiness.HeadingPattern); err != nil {
		return Rules{}, fmt.Errorf("invalid readiness heading pattern: %w", err)
	}
	return rules, nil
}

// Is reports whether toolName belongs to class.
func (r Rules) Is(class Class, toolName string) bool {
	var set []string
	switch class {
	case ClassRead:
		set = r.Read
	case ClassWrite:
		set = r.Write
	case ClassShell:
		set = r.Shell
	case ClassSearch:
		set = r.Search
	case ClassAgent:
		set = r.Agent
	}
	for _, name := range set {
		if name == toolName {
			return true
		}
	}
	return false
}

// ReadOnlyCommand reports whether command starts with an allow-listed
// prefix, either exactly or followed by a space or tab.
func (r Rules) ReadOnlyCommand(command string) bool {
	command = strings.TrimSpace(command)
	for _, prefix := range r.PlanShellAllow {
		if !strings.HasPrefix(command, prefix) {
			continue
		}
		rest := command[len(prefix):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return true
		}
	}
	return false
}
