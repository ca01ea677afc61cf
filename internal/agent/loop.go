package agent

import (
	"context"
	"fmt"
	"time"

	"docent/internal/knowledge"
	"docent/internal/prompt"
	"docent/pkg/llm"
	"docent/pkg/logging"
	"docent/pkg/search"
)

const defaultMaxSteps = 30

// Knowledge is the document retrieval surface the loop depends on.
type Knowledge interface {
	Query(ctx context.Context, collection, query string, topK int, mode knowledge.Mode) ([]string, error)
	Collections() ([]string, error)
	DefaultCollection() string
}

// Transcript is the durable conversation record the loop reads and appends.
type Transcript interface {
	AppendUser(ctx context.Context, conversationID, content string) error
	AppendAssistant(ctx context.Context, conversationID, content string) error
	RenderHistory(ctx context.Context, conversationID string) (string, error)
}

type LoopConfig struct {
	Client      llm.Client
	Prompts     *prompt.Store
	Knowledge   Knowledge
	Search      search.Provider
	Transcript  Transcript
	Logger      logging.Logger
	MaxSteps    int
	StepTimeout time.Duration
	TopK        int
	SearchLimit int

	// Capabilities maps function-call names to their precomputed payloads,
	// injected when the model answers with a function-call signal.
	Capabilities map[string]string
}

// Loop drives the classify/dispatch cycle for one user turn: a ReAct-style
// think/act/observe loop with a hard step bound so it terminates regardless
// of classifier behavior.
type Loop struct {
	llm         *completer
	prompts     *prompt.Store
	knowledge   Knowledge
	search      search.Provider
	transcript  Transcript
	logger      logging.Logger
	maxSteps    int
	stepTimeout time.Duration
	topK        int
	searchLimit int
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompt store is required")
	}
	if cfg.Knowledge == nil {
		return nil, fmt.Errorf("knowledge repository is required")
	}
	if cfg.Transcript == nil {
		return nil, fmt.Errorf("transcript store is required")
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Loop{
		llm:         newCompleter(cfg.Client, cfg.StepTimeout, cfg.Capabilities, logger),
		prompts:     cfg.Prompts,
		knowledge:   cfg.Knowledge,
		search:      cfg.Search,
		transcript:  cfg.Transcript,
		logger:      logger,
		maxSteps:    maxSteps,
		stepTimeout: cfg.StepTimeout,
		topK:        topK,
		searchLimit: searchLimit,
	}, nil
}

// Answer runs one full turn: seed the context, loop classify/dispatch until a
// terminal action or the step budget runs out, generate the final answer, and
// commit the turn to the transcript. When a model or search call fails, the
// error propagates and nothing is persisted.
func (l *Loop) Answer(ctx context.Context, conversationID, userMessage string) (string, error) {
	start := time.Now()

	jobList, err := l.prompts.Render("job_list", nil)
	if err != nil {
		return "", fmt.Errorf("render job list: %w", err)
	}
	agentCtx := &Context{UserMessage: userMessage, JobList: jobList}

	for step := 0; step < l.maxSteps; step++ {
		action, err := l.classify(ctx, agentCtx)
		if err != nil {
			turnsTotal.WithLabelValues("error").Inc()
			return "", err
		}
		agentCtx.Trace("step %d: %s", step, action)
		actionsTotal.WithLabelValues(string(action)).Inc()

		switch action {
		case ActionRetrieveKnowledgeBase:
			err = l.retrieveKnowledge(ctx, agentCtx)
		case ActionSearchWeb:
			err = l.searchWeb(ctx, agentCtx)
		case ActionRecallHistory:
			err = l.recallHistory(ctx, agentCtx, conversationID)
		case ActionTerminate:
			return l.finish(ctx, conversationID, agentCtx, start)
		}
		if err != nil {
			turnsTotal.WithLabelValues("error").Inc()
			return "", err
		}
	}

	// Budget exhausted: answer with whatever was gathered.
	l.logger.WithField("conversation_id", conversationID).Warn("Step budget exhausted, forcing terminate")
	agentCtx.Trace("forced terminate: step budget exhausted")
	return l.finish(ctx, conversationID, agentCtx, start)
}

// classify runs the intent classifier over the current context and maps the
// raw output to an Action.
func (l *Loop) classify(ctx context.Context, agentCtx *Context) (Action, error) {
	rendered, err := l.prompts.Render("parse_intent", agentCtx.promptFields())
	if err != nil {
		return ActionTerminate, fmt.Errorf("render intent prompt: %w", err)
	}
	raw, err := l.llm.complete(ctx, rendered)
	if err != nil {
		return ActionTerminate, err
	}
	return ParseAction(raw), nil
}

// finish generates the terminal answer and commits the turn.
func (l *Loop) finish(ctx context.Context, conversationID string, agentCtx *Context, start time.Time) (string, error) {
	rendered, err := l.prompts.Render("answer", agentCtx.promptFields())
	if err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("render answer prompt: %w", err)
	}
	answer, err := l.llm.complete(ctx, rendered)
	if err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	if err := l.transcript.AppendUser(ctx, conversationID, agentCtx.UserMessage); err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("persist user message: %w", err)
	}
	if err := l.transcript.AppendAssistant(ctx, conversationID, answer); err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("persist assistant message: %w", err)
	}

	turnsTotal.WithLabelValues("success").Inc()
	turnDuration.Observe(time.Since(start).Seconds())
	return answer, nil
}
