package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docent/internal/knowledge"
	"docent/pkg/search"
)

// retrieveKnowledge asks a select-collection step which collection fits the
// user message, falling back to the default collection when the selection is
// unknown or fails, then merges the retrieved chunk texts into the context.
func (l *Loop) retrieveKnowledge(ctx context.Context, agentCtx *Context) error {
	collection := l.selectCollection(ctx, agentCtx)

	texts, err := l.knowledge.Query(ctx, collection, agentCtx.UserMessage, l.topK, knowledge.ModeRetriever)
	if errors.Is(err, knowledge.ErrCollectionNotFound) && collection != l.knowledge.DefaultCollection() {
		collection = l.knowledge.DefaultCollection()
		texts, err = l.knowledge.Query(ctx, collection, agentCtx.UserMessage, l.topK, knowledge.ModeRetriever)
	}
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		// Nothing ingested yet. No evidence, but the turn continues.
		l.logger.WithField("collection", collection).Warn("Knowledge collection missing")
		agentCtx.Trace("retrieve: collection %q not found", collection)
		return nil
	}
	if err != nil {
		return fmt.Errorf("query knowledge base: %w", err)
	}

	if len(texts) == 0 {
		agentCtx.Trace("retrieve: no matches in %q", collection)
		return nil
	}
	agentCtx.AddInformation("knowledge base: "+collection, strings.Join(texts, "\n---\n"))
	agentCtx.Trace("retrieve: %d chunks from %q", len(texts), collection)
	return nil
}

// selectCollection runs the optional select-collection model step. Any
// failure or unknown answer selects the default collection.
func (l *Loop) selectCollection(ctx context.Context, agentCtx *Context) string {
	fallback := l.knowledge.DefaultCollection()

	names, err := l.knowledge.Collections()
	if err != nil || len(names) == 0 {
		return fallback
	}

	fields := agentCtx.promptFields()
	fields["collection_names"] = strings.Join(names, "\n")
	rendered, err := l.prompts.Render("select_collection", fields)
	if err != nil {
		return fallback
	}
	choice, err := l.llm.complete(ctx, rendered)
	if err != nil {
		l.logger.WithError(err).Warn("Collection selection failed, using default")
		return fallback
	}
	for _, name := range names {
		if name == choice {
			return name
		}
	}
	return fallback
}

// searchWeb queries the web search provider with the raw user message, asks
// an evaluator step whether the result is useful, and only then compresses
// and merges it. The evaluator verdict is compared byte-exact against "Y" or
// "y"; anything else, including "Yes", is not useful. A non-useful result
// merges nothing but the step still counts against the bound.
func (l *Loop) searchWeb(ctx context.Context, agentCtx *Context) error {
	if l.search == nil {
		agentCtx.Trace("search_web: no provider configured")
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, l.searchTimeout())
	results, err := l.search.Search(searchCtx, agentCtx.UserMessage, search.Options{Limit: l.searchLimit})
	cancel()
	if err != nil {
		return fmt.Errorf("web search: %w", err)
	}
	resultText := formatSearchResults(results)

	fields := agentCtx.promptFields()
	fields["search_results"] = resultText
	rendered, err := l.prompts.Render("evaluate_search", fields)
	if err != nil {
		return fmt.Errorf("render evaluator prompt: %w", err)
	}
	verdict, err := l.llm.complete(ctx, rendered)
	if err != nil {
		return err
	}
	if !isUsefulVerdict(verdict) {
		agentCtx.Trace("search_web: results judged not useful")
		return nil
	}

	rendered, err = l.prompts.Render("compress_search", fields)
	if err != nil {
		return fmt.Errorf("render compression prompt: %w", err)
	}
	compressed, err := l.llm.complete(ctx, rendered)
	if err != nil {
		return err
	}
	agentCtx.AddInformation("internet", compressed)
	agentCtx.Trace("search_web: merged compressed results")
	return nil
}

// isUsefulVerdict applies the evaluator's strict contract: the literal tokens
// "Y" and "y" mean useful, every other output does not.
func isUsefulVerdict(verdict string) bool {
	return verdict == "Y" || verdict == "y"
}

// recallHistory loads the full transcript into the context so the next
// classification round sees prior turns.
func (l *Loop) recallHistory(ctx context.Context, agentCtx *Context, conversationID string) error {
	history, err := l.transcript.RenderHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("recall history: %w", err)
	}
	agentCtx.ChatHistory = history
	agentCtx.Trace("recall_history: loaded transcript")
	return nil
}

func (l *Loop) searchTimeout() time.Duration {
	if l.stepTimeout > 0 {
		return l.stepTimeout
	}
	return 30 * time.Second
}

func formatSearchResults(results []search.Result) string {
	if len(results) == 0 {
		return "no results"
	}
	var b strings.Builder
	for i, result := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, result.Title)
		if result.URL != "" {
			fmt.Fprintf(&b, "%s\n", result.URL)
		}
		if result.Content != "" {
			b.WriteString(result.Content)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}
