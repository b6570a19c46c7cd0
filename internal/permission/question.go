package permission

import (
	"context"
	"fmt"
	"strings"

	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
)

const otherOptionID = "other"

// Question is one entry of a multi-question tool call.
type Question struct {
	Text        string
	Header      string
	Options     []QuestionOption
	MultiSelect bool
}

// QuestionOption is one predefined answer.
type QuestionOption struct {
	Label       string
	Description string
}

// NormalizeQuestions converts question-tool input into an ordered list. The
// legacy single-question shape becomes a one-element list.
func NormalizeQuestions(input toolinfo.Input) []Question {
	raw := input.Objects("questions")
	if len(raw) == 0 && input.String("question") != "" {
		raw = []toolinfo.Input{input}
	}
	out := make([]Question, 0, len(raw))
	for _, q := range raw {
		question := Question{
			Text:        q.String("question"),
			Header:      q.String("header"),
			MultiSelect: q.Bool("multiSelect"),
		}
		if opts := q.Objects("options"); len(opts) > 0 {
			for _, opt := range opts {
				question.Options = append(question.Options, QuestionOption{
					Label:       opt.String("label"),
					Description: opt.String("description"),
				})
			}
		} else {
			for _, label := range q.Strings("options") {
				question.Options = append(question.Options, QuestionOption{Label: label})
			}
		}
		out = append(out, question)
	}
	return out
}

func (e *Engine) questions(ctx context.Context, s State, input toolinfo.Input, toolUseID string) Decision {
	questions := NormalizeQuestions(input)
	answers := make(map[string]any, len(questions))
	toolCall := toolCallContext(toolinfo.ToolAskUserQuestion, input, toolUseID)

	for _, q := range questions {
		options := make([]wire.DecisionOption, 0, len(q.Options)+1)
		for i, opt := range q.Options {
			options = append(options, wire.DecisionOption{
				OptionID:    optionID(i),
				Name:        opt.Label,
				Kind:        wire.OptionAllowOnce,
				Description: opt.Description,
			})
		}
		options = append(options, wire.DecisionOption{
			OptionID: otherOptionID,
			Name:     "Other",
			Kind:     wire.OptionAllowOnce,
			FreeText: true,
		})

		outcome := e.ask(ctx, wire.DecisionRequest{
			SessionID:   s.ID(),
			ToolCall:    toolCall,
			Options:     options,
			Prompt:      q.Text,
			Header:      q.Header,
			MultiSelect: q.MultiSelect,
		})
		answer, ok := answerFor(q, outcome)
		if !ok {
			return deny(msgQuestionsIncomplete, true, ErrToolDenied)
		}
		answers[q.Text] = answer
	}

	updated := input.Clone()
	updated["answers"] = answers
	return allow(updated)
}

func optionID(i int) string {
	return fmt.Sprintf("opt-%d", i)
}

// answerFor converts a decision outcome into answer text. ok is false when
// the question was not answered.
func answerFor(q Question, outcome wire.DecisionOutcome) (string, bool) {
	if outcome.Cancelled {
		return "", false
	}
	label := func(id string) (string, bool) {
		if id == otherOptionID {
			text := strings.TrimSpace(outcome.CustomText)
			return text, text != ""
		}
		for i, opt := range q.Options {
			if optionID(i) == id {
				return opt.Label, true
			}
		}
		return "", false
	}

	if q.MultiSelect && len(outcome.MultiSelectIDs) > 0 {
		labels := make([]string, 0, len(outcome.MultiSelectIDs))
		for _, id := range outcome.MultiSelectIDs {
			l, ok := label(id)
			if !ok {
				return "", false
			}
			labels = append(labels, l)
		}
		return strings.Join(labels, ", "), true
	}
	return label(outcome.OptionID)
}
