package orchestrator

import (
	"context"
	"time"

	"github.com/aqa-systems/brain/internal/utdl"
)

// RunPlanStreaming runs plan exactly like RunPlan, but emits a synthetic
// event stream over events following the total order: execution_started,
// then for each step i in declared order step_started(i), step_completed(i),
// progress{completed: i+1}, and finally execution_completed. Because the
// executor is a one-shot binary, the whole report is known before any
// per-step event is emitted; this function replays it against that order
// rather than the executor producing it live, so a future truly-streaming
// executor can populate the same channel contract incrementally instead.
// A successful run totals exactly 2+3N events for an N-step plan; when
// RunPlan fails, only execution_started and execution_completed are sent.
func (o *Orchestrator) RunPlanStreaming(ctx context.Context, plan utdl.Plan, opts Options, events chan<- Event) (RunnerResult, error) {
	defer close(events)

	emit := func(e Event) {
		e.OccurredAt = time.Now().UTC()
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	emit(Event{Type: EventExecutionStarted, StepCount: len(plan.Steps)})

	result, err := o.RunPlan(ctx, plan, opts)
	if err != nil {
		emit(Event{Type: EventExecutionCompleted})
		return RunnerResult{}, err
	}

	resultByID := make(map[string]StepResult, len(result.Steps))
	for _, r := range result.Steps {
		resultByID[r.StepID] = r
	}

	for i, step := range plan.Steps {
		emit(Event{Type: EventStepStarted, StepID: step.ID, StepIndex: i, StepCount: len(plan.Steps)})

		r, ok := resultByID[step.ID]
		if !ok {
			r = StepResult{StepID: step.ID, Status: StepSkipped}
		}
		rCopy := r
		emit(Event{Type: EventStepCompleted, StepID: step.ID, StepIndex: i, StepCount: len(plan.Steps), Result: &rCopy})
		emit(Event{Type: EventProgress, StepIndex: i + 1, StepCount: len(plan.Steps)})
	}

	summary := result
	emit(Event{Type: EventExecutionCompleted, Summary: &summary})

	return result, nil
}
