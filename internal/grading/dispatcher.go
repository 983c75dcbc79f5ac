package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

// DefaultCallTimeout bounds a single model call.
const DefaultCallTimeout = 90 * time.Second

// DispatcherConfig configures the fan-out.
type DispatcherConfig struct {
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// Dispatcher sends one grading request to every model in its panel concurrently.
type Dispatcher struct {
	clients []ai.ModelClient
	timeout time.Duration
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewDispatcher builds a dispatcher over a fixed, ordered panel of clients.
func NewDispatcher(clients []ai.ModelClient, cfg DispatcherConfig) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	return &Dispatcher{
		clients: append([]ai.ModelClient(nil), clients...),
		timeout: cfg.CallTimeout,
		tracer:  otel.Tracer("github.com/noah-isme/gema-grading-api/internal/grading/dispatcher"),
		logger:  cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// PanelSize returns the number of model identities.
func (d *Dispatcher) PanelSize() int {
	return len(d.clients)
}

// Dispatch issues the request to every client and returns one vote per client,
// ordered by panel position. Calls run detached from ctx: if the caller goes
// away they still finish, but Dispatch returns ctx.Err() and the votes are
// dropped. When every call fails the votes are returned with ErrDispatchExhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, req ai.GradeRequest) ([]GradeVote, error) {
	if len(d.clients) == 0 {
		return nil, ErrDispatchExhausted
	}

	spanCtx, span := d.tracer.Start(ctx, "grading.dispatch", trace.WithAttributes(
		attribute.Int("grading.panel_size", len(d.clients)),
	))
	defer span.End()

	start := time.Now()
	votes := make([]GradeVote, len(d.clients))
	detached := context.WithoutCancel(spanCtx)

	var wg sync.WaitGroup
	for i, client := range d.clients {
		wg.Add(1)
		go func(i int, client ai.ModelClient) {
			defer wg.Done()
			votes[i] = d.call(detached, client, req)
		}(i, client)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		span.SetStatus(codes.Error, "caller_cancelled")
		return nil, ctx.Err()
	}

	observability.DispatchDuration().Observe(time.Since(start).Seconds())

	for _, vote := range votes {
		if vote.Succeeded {
			return votes, nil
		}
	}

	span.SetStatus(codes.Error, "dispatch_exhausted")
	return votes, ErrDispatchExhausted
}

type callOutcome struct {
	resp ai.GradeResponse
	err  error
}

// call grades with one client. The deadline is enforced here rather than
// trusted to the client: a call still running at the deadline is recorded as
// a timeout and its late answer is discarded.
func (d *Dispatcher) call(ctx context.Context, client ai.ModelClient, req ai.GradeRequest) (vote GradeVote) {
	modelID := "unknown"

	ctx, span := d.tracer.Start(ctx, "grading.model_call")
	defer span.End()

	fail := func(callErr *ModelCallError) GradeVote {
		observability.ModelCallFailures().WithLabelValues(callErr.ModelID, callErr.Reason).Inc()
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Reason)
		d.logger.Warn().Err(callErr).Str("model_id", callErr.ModelID).Msg("model call failed")
		return GradeVote{ModelID: callErr.ModelID, FailureReason: callErr.Error()}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			vote = fail(&ModelCallError{ModelID: modelID, Reason: "panic", Err: fmt.Errorf("%v", recovered)})
		}
	}()

	modelID = client.ID()
	vote.ModelID = modelID
	span.SetAttributes(attribute.String("model", modelID))

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				outcome <- callOutcome{err: &panicError{value: recovered}}
			}
		}()
		resp, err := client.Grade(callCtx, req)
		outcome <- callOutcome{resp: resp, err: err}
	}()

	var resp ai.GradeResponse
	var err error
	select {
	case result := <-outcome:
		resp, err = result.resp, result.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	var panicked *panicError
	if errors.As(err, &panicked) {
		return fail(&ModelCallError{ModelID: modelID, Reason: "panic", Err: err})
	}
	if err != nil {
		reason := "transport"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, ai.ErrMalformedResponse):
			reason = "malformed_response"
		}
		return fail(&ModelCallError{ModelID: modelID, Reason: reason, Err: err})
	}

	if math.IsNaN(resp.Grade) || math.IsInf(resp.Grade, 0) || resp.Grade < 0 || (req.MaxScore > 0 && resp.Grade > req.MaxScore) {
		return fail(&ModelCallError{
			ModelID: modelID,
			Reason:  "malformed_response",
			Err:     fmt.Errorf("grade %v outside [0, %v]", resp.Grade, req.MaxScore),
		})
	}

	grade := resp.Grade
	return GradeVote{
		ModelID:      modelID,
		NumericGrade: &grade,
		FeedbackText: resp.Feedback,
		Succeeded:    true,
	}
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
