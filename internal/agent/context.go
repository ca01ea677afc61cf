package agent

import (
	"fmt"
	"strings"
)

// Action is the classifier's decision for one loop step. The classifier
// output is untrusted text; ParseAction maps anything outside the known set
// to ActionTerminate.
type Action string

const (
	ActionRetrieveKnowledgeBase Action = "retrieve_knowledge_base"
	ActionRecallHistory         Action = "recall_history"
	ActionSearchWeb             Action = "search_web"
	ActionTerminate             Action = "terminate"
)

// ParseAction maps raw classifier output to an Action. Unknown labels
// terminate the loop; that fallback is deliberate, not incidental.
func ParseAction(raw string) Action {
	switch Action(strings.TrimSpace(raw)) {
	case ActionRetrieveKnowledgeBase:
		return ActionRetrieveKnowledgeBase
	case ActionRecallHistory:
		return ActionRecallHistory
	case ActionSearchWeb:
		return ActionSearchWeb
	default:
		return ActionTerminate
	}
}

// Context accumulates evidence across the steps of one turn. It is owned by
// exactly one turn and discarded when the turn ends; the only durable residue
// is what the transcript store persists.
type Context struct {
	UserMessage string
	JobList     string
	Information []string
	ChatHistory string
	ActionTrace []string
}

// AddInformation merges one labeled piece of evidence.
func (c *Context) AddInformation(label, text string) {
	c.Information = append(c.Information, fmt.Sprintf("[%s]\n%s", label, text))
}

// Trace appends one audit line to the action history.
func (c *Context) Trace(format string, args ...any) {
	c.ActionTrace = append(c.ActionTrace, fmt.Sprintf(format, args...))
}

// InformationText renders the gathered evidence for prompt substitution.
func (c *Context) InformationText() string {
	return strings.Join(c.Information, "\n\n")
}

// TraceText renders the action history for prompt substitution.
func (c *Context) TraceText() string {
	return strings.Join(c.ActionTrace, "\n")
}

// promptFields exposes the context to {field}-style templates.
func (c *Context) promptFields() map[string]string {
	return map[string]string{
		"user_message":   c.UserMessage,
		"job_list":       c.JobList,
		"information":    c.InformationText(),
		"chat_history":   c.ChatHistory,
		"action_history": c.TraceText(),
	}
}
