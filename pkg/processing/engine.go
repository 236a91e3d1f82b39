package processing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/pipeline"
	"github.com/systemstart/many-deploy/pkg/resource"
	"github.com/systemstart/many-deploy/pkg/steps"
)

// PlanRun is the outcome of running one plan. Exactly one of Result and
// Err describes it: Err is set when the plan never started executing.
type PlanRun struct {
	Plan   *api.Plan
	Result *pipeline.Result
	Err    error
}

// Failed reports whether the plan did not complete.
func (r PlanRun) Failed() bool {
	return r.Err != nil || !r.Result.Completed()
}

// BuildPipeline turns a plan into a pipeline. The plan context is merged
// over a copy of globalContext and interpolated; the result is the template
// data step arguments render against. Neither globalContext nor plan.Context
// is modified, so one global context can serve many plans. Options given by
// the caller override the pipeline name derived from the plan.
func BuildPipeline(plan *api.Plan, globalContext map[string]any, client resource.Client, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	data, err := CopyContext(MergeContext(globalContext, plan.Context))
	if err != nil {
		return nil, err
	}
	if err := InterpolateContext(data); err != nil {
		return nil, fmt.Errorf("interpolating context: %w", err)
	}

	stepList, err := steps.NewSteps(plan.Steps)
	if err != nil {
		return nil, err
	}

	all := append([]pipeline.Option{
		pipeline.WithName(planName(plan)),
		pipeline.WithTemplateData(data),
	}, opts...)
	return pipeline.New(stepList, client, all...)
}

// RunPlan builds and runs a single plan.
func RunPlan(ctx context.Context, plan *api.Plan, globalContext map[string]any, client resource.Client, opts ...pipeline.Option) (*pipeline.Result, error) {
	p, err := BuildPipeline(plan, globalContext, client, opts...)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// RunAll discovers plans under root and runs each in order against the same
// client. A failing plan does not stop the following ones; cancelling ctx
// does. The returned error summarizes the failed plans.
func RunAll(ctx context.Context, root, pattern string, maxDepth int, globalContext map[string]any, client resource.Client, opts ...pipeline.Option) ([]PlanRun, error) {
	plans, err := DiscoverPlans(root, pattern, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("discovering plans: %w", err)
	}

	if len(plans) == 0 {
		slog.Warn("no plan files found", "dir", root, "pattern", pattern)
		return nil, nil
	}

	slog.Info("discovered plans", "count", len(plans))

	runs := make([]PlanRun, 0, len(plans))
	var failed []string
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return runs, fmt.Errorf("stopped before %s: %w", plan.FilePath, err)
		}

		slog.Info("executing plan", "path", plan.FilePath)
		res, rErr := RunPlan(ctx, plan, globalContext, client, opts...)
		run := PlanRun{Plan: plan, Result: res, Err: rErr}
		runs = append(runs, run)

		switch {
		case rErr != nil:
			slog.Error("plan rejected", "path", plan.FilePath, "error", rErr)
			failed = append(failed, plan.FilePath)
		case run.Failed():
			slog.Error("plan aborted", "path", plan.FilePath, "step", res.FailedStep, "error", res.Err)
			failed = append(failed, plan.FilePath)
		default:
			slog.Info("plan succeeded", "path", plan.FilePath)
		}
	}

	if len(failed) > 0 {
		return runs, fmt.Errorf("%d plan(s) failed: %v", len(failed), failed)
	}
	return runs, nil
}

func planName(plan *api.Plan) string {
	if plan.FilePath != "" {
		return plan.FilePath
	}
	return "default"
}
