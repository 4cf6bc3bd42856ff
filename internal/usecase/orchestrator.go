package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/tracer"
)

// Fixed replies for degraded turns. Summary failure happens after tool
// side-effects already ran, so the turn still commits with the apology.
const (
	summaryApology = "I'm sorry, I ran into a problem while summarizing the tool results."
	emptyFallback  = "I'm sorry, I can't answer that."
)

// Orchestrator drives one conversational turn: build context, ask the
// reasoning model for a decision, run tools if requested, and commit the
// whole exchange as a single batch.
type Orchestrator struct {
	provider   domain.ReasoningProvider
	store      domain.HistoryStore
	window     *WindowBuilder
	dispatcher *Dispatcher
	guard      *ContextGuard // nil when disabled
	tools      domain.ToolExecutor
	sysPrompt  string
	log        *slog.Logger
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Provider   domain.ReasoningProvider
	Store      domain.HistoryStore
	Window     *WindowBuilder
	Dispatcher *Dispatcher
	Guard      *ContextGuard
	Tools      domain.ToolExecutor
	SysPrompt  string
	Logger     *slog.Logger
}

// NewOrchestrator wires up an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		provider:   deps.Provider,
		store:      deps.Store,
		window:     deps.Window,
		dispatcher: deps.Dispatcher,
		guard:      deps.Guard,
		tools:      deps.Tools,
		sysPrompt:  deps.SysPrompt,
		log:        deps.Logger,
	}
}

// HandleTurn runs one full turn for the session. systemPromptOverride, when
// non-empty, replaces the session's stored prompt for this and later turns.
// A decision-call or commit failure aborts the turn with no visible side
// effects; tool and summary failures degrade the answer but still commit.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userText, systemPromptOverride string) (*domain.TurnResult, error) {
	ctx = domain.ContextWithSessionID(ctx, sessionID)
	ctx, span := tracer.StartSpan(ctx, "turn.handle")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("session.id", sessionID))

	log := o.log.With("session_id", sessionID)

	session, err := o.store.GetOrCreateSession(ctx, sessionID, o.sysPrompt)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("turn.session", err)
	}

	systemPrompt := session.SystemPrompt
	if systemPromptOverride != "" && systemPromptOverride != session.SystemPrompt {
		if err := o.store.UpdateSystemPrompt(ctx, sessionID, systemPromptOverride); err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("turn.session", err)
		}
		systemPrompt = systemPromptOverride
	}

	outbound, userMsg, err := o.buildContext(ctx, sessionID, systemPrompt, userText)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	decision, err := o.provider.Decide(ctx, outbound, o.tools.Schemas())
	if err != nil {
		log.Error("decision call failed", "error", err)
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError("turn.decide", domain.ErrDecisionFailed, err.Error())
	}
	usage := decision.Usage

	var (
		finalAnswer string
		toolsUsed   []domain.ToolInvocation
		batch       []domain.Message
	)

	if decision.Message.HasToolCalls() {
		log.Info("decision requested tools", "count", len(decision.Message.ToolCalls))
		var summaryUsage domain.Usage
		finalAnswer, batch, toolsUsed, summaryUsage = o.toolBranch(ctx, systemPrompt, userMsg, decision.Message)
		usage = usage.Add(summaryUsage)
	} else {
		log.Info("decision answered directly")
		finalAnswer, batch = o.directBranch(userMsg, decision.Message)
	}

	if err := o.store.AppendBatch(ctx, sessionID, batch); err != nil {
		log.Error("transcript commit failed", "error", err, "batch", len(batch))
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError("turn.persist", domain.ErrStoreCommit, err.Error())
	}

	tracer.SetOK(span)
	return &domain.TurnResult{
		SessionID:   sessionID,
		FinalAnswer: finalAnswer,
		ToolsUsed:   toolsUsed,
		Usage:       usage,
	}, nil
}

// buildContext assembles [system?] + sanitized window + [user]. The window
// is sanitized again here even though the builder respects chain
// boundaries, so corrupted storage can never reach the model.
func (o *Orchestrator) buildContext(ctx context.Context, sessionID, systemPrompt, userText string) ([]domain.Message, domain.Message, error) {
	userMsg := domain.Message{Role: domain.RoleUser, Content: userText}

	window, err := o.window.Build(ctx, sessionID)
	if err != nil {
		return nil, userMsg, domain.WrapOp("turn.window", err)
	}
	window = SanitizeChains(window, o.log)

	fixed := make([]domain.Message, 0, 2)
	if systemPrompt != "" {
		fixed = append(fixed, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	fixed = append(fixed, userMsg)

	if o.guard != nil {
		window = o.guard.Fit(window, fixed)
	}

	out := make([]domain.Message, 0, len(window)+2)
	if systemPrompt != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	out = append(out, window...)
	out = append(out, userMsg)
	return out, userMsg, nil
}

// toolBranch dispatches the requested calls, asks the model to summarize
// the results, and assembles the commit batch. Summary failure degrades to
// the fixed apology because the tool side-effects already happened.
func (o *Orchestrator) toolBranch(ctx context.Context, systemPrompt string, userMsg, decision domain.Message) (string, []domain.Message, []domain.ToolInvocation, domain.Usage) {
	assistantMsg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   decision.Content,
		ToolCalls: decision.ToolCalls,
	}

	results := o.dispatcher.Dispatch(ctx, decision.ToolCalls)
	resultMsgs := make([]domain.Message, len(results))
	for i, res := range results {
		resultMsgs[i] = res.Message()
	}

	summaryCtx := make([]domain.Message, 0, len(resultMsgs)+3)
	if systemPrompt != "" {
		summaryCtx = append(summaryCtx, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	summaryCtx = append(summaryCtx, userMsg, assistantMsg)
	summaryCtx = append(summaryCtx, resultMsgs...)

	var usage domain.Usage
	finalAnswer, usage, err := o.provider.Summarize(ctx, summaryCtx)
	if err != nil || finalAnswer == "" {
		o.log.Warn("summary call failed, degrading to apology", "error", err)
		finalAnswer = summaryApology
	}

	batch := make([]domain.Message, 0, len(resultMsgs)+3)
	batch = append(batch, userMsg, assistantMsg)
	batch = append(batch, resultMsgs...)
	batch = append(batch, domain.Message{Role: domain.RoleAssistant, Content: finalAnswer})

	return finalAnswer, batch, invocations(decision.ToolCalls), usage
}

// directBranch handles a decision without tool calls.
func (o *Orchestrator) directBranch(userMsg, decision domain.Message) (string, []domain.Message) {
	finalAnswer := decision.Content
	if finalAnswer == "" {
		finalAnswer = emptyFallback
	}
	batch := []domain.Message{
		userMsg,
		{Role: domain.RoleAssistant, Content: finalAnswer},
	}
	return finalAnswer, batch
}

// invocations reports the requested calls with their parsed arguments.
// Unparsable arguments are kept as a raw string rather than dropped.
func invocations(calls []domain.ToolCall) []domain.ToolInvocation {
	out := make([]domain.ToolInvocation, len(calls))
	for i, tc := range calls {
		args := map[string]any{}
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = map[string]any{"_raw": string(tc.Arguments)}
			}
		}
		out[i] = domain.ToolInvocation{Name: tc.Name, Arguments: args}
	}
	return out
}

// IsDecisionFailure reports whether err belongs to the fatal "decision call
// failed" class, as opposed to turns that commit with degraded content.
func IsDecisionFailure(err error) bool {
	return errors.Is(err, domain.ErrDecisionFailed)
}
