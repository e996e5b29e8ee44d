// Package completion orchestrates inline completion attempts: prompt
// construction, streaming generation, cancellation, and normalization
// of the raw model output.
package completion

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	assisterr "github.com/il-dat/open-code-assistant/pkg/errors"
	"github.com/il-dat/open-code-assistant/pkg/logging"
	"github.com/il-dat/open-code-assistant/pkg/model"
	"github.com/il-dat/open-code-assistant/pkg/prompt"
	"github.com/il-dat/open-code-assistant/pkg/telemetry"
)

// Generator is the streaming inference surface the service depends on.
// *model.Client satisfies it.
type Generator interface {
	GenerateStream(ctx context.Context, req model.GenerateRequest) (<-chan model.GenerateChunk, <-chan error)
}

// Notifier receives user-visible error messages. The host editor's
// notification surface implements it.
type Notifier interface {
	NotifyError(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) NotifyError(message string) { f(message) }

// Options carries the generation parameters for completion requests.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Result is a finished completion anchored at the cursor position it
// was requested for.
type Result struct {
	Text     string
	Position prompt.Position
}

// Service coordinates one completion attempt end to end. Attempts are
// independent; overlapping attempts each own their own cancel handle,
// and only Dispose or the caller's context stops one.
type Service struct {
	generator Generator
	notifier  Notifier
	opts      Options
	logger    *logging.Logger
	registry  *requestRegistry
}

func NewService(generator Generator, notifier Notifier, opts Options, logger *logging.Logger) *Service {
	return &Service{
		generator: generator,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		registry:  newRequestRegistry(),
	}
}

// ProvideCompletion runs one completion attempt for the given cursor
// position. It returns nil, never an error, whenever there is nothing
// to insert: degenerate input, cancellation, empty model output, or a
// transport failure (reported once through the Notifier).
func (s *Service) ProvideCompletion(ctx context.Context, doc prompt.Document, pos prompt.Position) *Result {
	start := time.Now()
	defer func() {
		telemetry.CompletionDuration.Observe(time.Since(start).Seconds())
	}()

	if ctx.Err() != nil {
		telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeCancelled).Inc()
		return nil
	}
	if strings.TrimSpace(prompt.TextBeforeCursor(doc, pos)) == "" {
		telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return nil
	}

	req := model.GenerateRequest{
		Model:  s.opts.Model,
		Prompt: prompt.Build(doc, pos),
		Options: model.GenerateOptions{
			Temperature: s.opts.Temperature,
			NumPredict:  s.opts.MaxTokens,
			Stop:        StopSequences(),
		},
		Stream: true,
	}

	id := ulid.Make().String()
	reqCtx, cancel := context.WithCancel(ctx)
	s.registry.register(id, cancel)
	defer s.registry.release(id)

	s.logger.Debug(logging.CategoryCompletion, "attempt_started", "completion attempt started", map[string]any{
		"request_id": id,
		"model":      req.Model,
	})

	chunks, errs := s.generator.GenerateStream(reqCtx, req)
	accumulated := collect(reqCtx, chunks)

	if err := <-errs; err != nil {
		if assisterr.IsCode(err, assisterr.ErrCodeCancelled) {
			telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeCancelled).Inc()
			return nil
		}
		s.logger.Error(logging.CategoryCompletion, "attempt_failed", err.Error(), map[string]any{
			"request_id": id,
			"code":       string(assisterr.GetCode(err)),
		})
		if s.notifier != nil {
			s.notifier.NotifyError(assisterr.UserMessageFor(err))
		}
		telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeFailed).Inc()
		return nil
	}

	if reqCtx.Err() != nil {
		telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeCancelled).Inc()
		return nil
	}

	text := Process(accumulated)
	if text == "" {
		telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return nil
	}

	s.logger.Info(logging.CategoryCompletion, "attempt_completed", "completion produced", map[string]any{
		"request_id": id,
		"lines":      strings.Count(text, "\n") + 1,
	})
	telemetry.CompletionsTotal.WithLabelValues(telemetry.OutcomeCompleted).Inc()
	return &Result{Text: text, Position: pos}
}

// collect drains the chunk stream into a single string. The cancel
// check runs before each append, so a delta arriving after cancellation
// is dropped while everything received before it is kept.
func collect(ctx context.Context, chunks <-chan model.GenerateChunk) string {
	var sb strings.Builder
	for chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		sb.WriteString(chunk.TextDelta)
		telemetry.StreamChunksTotal.Inc()
		if chunk.IsFinal {
			break
		}
	}
	return sb.String()
}

// ActiveRequests reports how many attempts are currently registered.
func (s *Service) ActiveRequests() int {
	return s.registry.size()
}

// Dispose cancels every in-flight attempt and clears the registry.
// Idempotent; every pending ProvideCompletion settles to nil.
func (s *Service) Dispose() {
	s.registry.cancelAll()
	s.logger.Info(logging.CategoryCompletion, "service_disposed", "completion service disposed", nil)
}
