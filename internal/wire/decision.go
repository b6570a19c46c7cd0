package wire

// OptionKind hints how a client should render a decision option.
type OptionKind string

const (
	OptionAllowAlways  OptionKind = "allow_always"
	OptionAllowOnce    OptionKind = "allow_once"
	OptionRejectOnce   OptionKind = "reject_once"
	OptionRejectAlways OptionKind = "reject_always"
)

// DecisionOption is one choice offered to the human.
type DecisionOption struct {
	OptionID string     `json:"optionId"`
	Name     string     `json:"name"`
	Kind     OptionKind `json:"kind"`
	// Description is extra help text (question options only).
	Description string `json:"description,omitempty"`
	// FreeText marks the "other" escape that accepts custom text.
	FreeText bool `json:"freeText,omitempty"`
}

// DecisionRequest asks a human to pick one of Options.
type DecisionRequest struct {
	// RequestID uniquely identifies the request within the process.
	RequestID string `json:"requestId"`
	// SessionID identifies the session the request belongs to.
	SessionID string `json:"sessionId"`
	// ToolCall describes the tool invocation being decided.
	ToolCall ToolCallUpdate `json:"toolCall"`
	// Options are the available choices, in display order.
	Options []DecisionOption `json:"options"`
	// Prompt is the question text for question-flow requests.
	Prompt string `json:"prompt,omitempty"`
	// Header is a short label for question-flow requests.
	Header string `json:"header,omitempty"`
	// MultiSelect allows selecting several options at once.
	MultiSelect bool `json:"multiSelect,omitempty"`
}

// DecisionOutcome is the human's answer to a DecisionRequest. It is either
// cancelled, or carries the selected option.
type DecisionOutcome struct {
	Cancelled bool `json:"cancelled,omitempty"`
	// OptionID is the selected option.
	OptionID string `json:"optionId,omitempty"`
	// CustomText is the free text entered for a FreeText option.
	CustomText string `json:"customText,omitempty"`
	// MultiSelectIDs lists every option selected in a multi-select request.
	MultiSelectIDs []string `json:"multiSelectIds,omitempty"`
}

// Cancelled is the outcome used when no decision could be obtained.
func Cancelled() DecisionOutcome {
	return DecisionOutcome{Cancelled: true}
}

// Selected is the outcome for a single selected option.
func Selected(optionID string) DecisionOutcome {
	return DecisionOutcome{OptionID: optionID}
}

// PermissionUpdate is a rule or mode change the upstream runtime should apply
// alongside an allow decision.
type PermissionUpdate struct {
	// Type is "addRules" or "setMode".
	Type        string           `json:"type"`
	Rules       []PermissionRule `json:"rules,omitempty"`
	Behavior    string           `json:"behavior,omitempty"`
	Mode        string           `json:"mode,omitempty"`
	Destination string           `json:"destination"`
}

// PermissionRule names a tool (and optional content pattern) a rule applies to.
type PermissionRule struct {
	ToolName    string `json:"toolName"`
	RuleContent string `json:"ruleContent,omitempty"`
}

// AllowToolRule returns the session-scoped "always allow toolName" update.
func AllowToolRule(toolName string) PermissionUpdate {
	return PermissionUpdate{
		Type:        "addRules",
		Rules:       []PermissionRule{{ToolName: toolName}},
		Behavior:    "allow",
		Destination: "session",
	}
}

// SetModeUpdate returns the session-scoped permission mode change update.
func SetModeUpdate(mode string) PermissionUpdate {
	return PermissionUpdate{Type: "setMode", Mode: mode, Destination: "session"}
}
