package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRulesShellAllowList(t *testing.T) {
	rules := DefaultRules()
	require.GreaterOrEqual(t, len(rules.PlanShellAllow), 60)

	for _, cmd := range []string{"ls", "ls -la", "  cat\tREADME.md", "git log --oneline", "rg foo"} {
		require.True(t, rules.ReadOnlyCommand(cmd), cmd)
	}
	for _, cmd := range []string{"rm -rf /", "lsof", "git push", "gitk", "catapult", ""} {
		require.False(t, rules.ReadOnlyCommand(cmd), cmd)
	}
}

func TestParseRulesOverridesOnlyGivenKeys(t *testing.T) {
	rules, err := ParseRules([]byte(`
shell: [Bash, Shell]
plan_shell_allow: [ls]
readiness:
  min_length: 10
`))
	require.NoError(t, err)
	require.True(t, rules.Is(ClassShell, "Shell"))
	require.Equal(t, []string{"ls"}, rules.PlanShellAllow)
	require.Equal(t, 10, rules.Readiness.MinLength)
	require.Equal(t, DefaultRules().Readiness.HeadingPattern, rules.Readiness.HeadingPattern)
	require.Equal(t, DefaultRules().Read, rules.Read)

	_, err = ParseRules([]byte("readiness:\n  heading_pattern: \"(\"\n"))
	require.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	require.Equal(t, DefaultRules(), rules)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [Task]\n"), 0o600))
	rules, err = LoadRules(path)
	require.NoError(t, err)
	require.False(t, rules.Is(ClassAgent, "TodoWrite"))

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	got, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeDefault, got)

	_, err = ParseMode("yolo")
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestWithin(t *testing.T) {
	require.True(t, within("/a/b", "/a/b"))
	require.True(t, within("/a/b", "/a/b/c.md"))
	require.False(t, within("/a/b", "/a/bc"))
	require.False(t, within("/a/b", "/a"))
	require.True(t, within("/a/b", "/a/b/..c"))
}
