package toolinfo

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FileContents reads full file text captured by earlier reads.
type FileContents interface {
	FileContent(path string) (string, bool)
}

// editOp is one old->new string replacement of an Edit or MultiEdit call.
type editOp struct {
	oldText    string
	newText    string
	replaceAll bool
}

func editOps(name string, in Input) []editOp {
	if name == ToolMultiEdit {
		var ops []editOp
		for _, e := range in.Objects("edits") {
			ops = append(ops, editOp{
				oldText:    e.String("old_string"),
				newText:    e.String("new_string"),
				replaceAll: e.Bool("replace_all"),
			})
		}
		return ops
	}
	return []editOp{{
		oldText:    in.String("old_string"),
		newText:    in.String("new_string"),
		replaceAll: in.Bool("replace_all"),
	}}
}

// applyEdits applies ops to content in order. ok is false when an old string
// is not found.
func applyEdits(content string, ops []editOp) (string, bool) {
	for _, op := range ops {
		if op.oldText == "" || !strings.Contains(content, op.oldText) {
			return content, false
		}
		if op.replaceAll {
			content = strings.ReplaceAll(content, op.oldText, op.newText)
		} else {
			content = strings.Replace(content, op.oldText, op.newText, 1)
		}
	}
	return content, true
}

// changedLines returns the sorted 1-based line numbers in after that differ
// from before.
func changedLines(before, after string) []int {
	a := difflib.SplitLines(before)
	b := difflib.SplitLines(after)
	seen := make(map[int]struct{})
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		line := op.J1 + 1
		if line > len(b) && len(b) > 0 {
			line = len(b)
		}
		seen[line] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for line := range seen {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}

// ApplyEdits applies an Edit or MultiEdit input to content. ok is false when
// any old string is missing from content.
func ApplyEdits(name string, in Input, content string) (string, bool) {
	return applyEdits(content, editOps(name, in))
}
