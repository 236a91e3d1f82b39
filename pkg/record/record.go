// Package record builds and stores a deployment record: which run produced
// which addresses, on which network, and how it ended.
package record

import (
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/pipeline"
	"github.com/systemstart/many-deploy/pkg/resource"
)

// Status values besides the pipeline states. A run rejected before any step
// executed never reached a pipeline state.
const StatusRejected = "rejected"

// Meta describes where a run happened.
type Meta struct {
	Network string
	ChainID uint64
	Signer  string
	DryRun  bool
}

// Step is the recorded outcome of one step.
type Step struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Action     string `json:"action,omitempty" yaml:"action,omitempty"`
	Status     string `json:"status" yaml:"status"`
	Address    string `json:"address,omitempty" yaml:"address,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS int64  `json:"durationMs" yaml:"durationMs"`
}

// Record is the persisted summary of one run.
type Record struct {
	RunID      string            `json:"runId" yaml:"runId"`
	Pipeline   string            `json:"pipeline" yaml:"pipeline"`
	Network    string            `json:"network,omitempty" yaml:"network,omitempty"`
	ChainID    uint64            `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	Signer     string            `json:"signer,omitempty" yaml:"signer,omitempty"`
	DryRun     bool              `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	Status     string            `json:"status" yaml:"status"`
	ErrorClass string            `json:"errorClass,omitempty" yaml:"errorClass,omitempty"`
	FailedStep string            `json:"failedStep,omitempty" yaml:"failedStep,omitempty"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt" yaml:"finishedAt"`
	Addresses  map[string]string `json:"addresses" yaml:"addresses"`
	Steps      []Step            `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// FromResult records a run that executed.
func FromResult(name string, res *pipeline.Result, meta Meta) Record {
	rec := newRecord(name, meta)
	rec.Status = string(res.State)
	rec.FailedStep = res.FailedStep
	rec.StartedAt = res.StartedAt.UTC()
	rec.FinishedAt = res.FinishedAt.UTC()
	setError(&rec, res.Err)

	for step, h := range res.Handles {
		rec.Addresses[step] = h.Address
	}

	rec.Steps = make([]Step, len(res.Outcomes))
	for i, o := range res.Outcomes {
		s := Step{
			Name:       o.Name,
			Type:       o.Kind,
			Status:     string(o.Status),
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Handle != nil {
			s.Address = o.Handle.Address
		}
		if o.Err != nil {
			s.Error = o.Err.Error()
		}
		rec.Steps[i] = s
	}
	return rec
}

// FromError records a run that was rejected before executing.
func FromError(name string, err error, meta Meta) Record {
	rec := newRecord(name, meta)
	now := time.Now().UTC()
	rec.Status = StatusRejected
	rec.StartedAt = now
	rec.FinishedAt = now
	setError(&rec, err)

	var se *resource.StepError
	if errors.As(err, &se) {
		rec.FailedStep = se.Step
	}
	return rec
}

// Describe labels recorded steps with what their configuration does, e.g.
// "configure ZeronV1Router.setArbitral". Steps are matched by name.
func (r *Record) Describe(configs []api.StepConfig) {
	actions := make(map[string]string, len(configs))
	for _, c := range configs {
		actions[c.Name] = c.Describe()
	}
	for i := range r.Steps {
		r.Steps[i].Action = actions[r.Steps[i].Name]
	}
}

// Completed reports whether the recorded run completed.
func (r Record) Completed() bool {
	return r.Status == string(pipeline.StateCompleted)
}

// Clone returns a copy that shares nothing with r.
func (r Record) Clone() Record {
	r.Addresses = maps.Clone(r.Addresses)
	r.Steps = append([]Step(nil), r.Steps...)
	return r
}

func newRecord(name string, meta Meta) Record {
	return Record{
		RunID:     uuid.NewString(),
		Pipeline:  name,
		Network:   meta.Network,
		ChainID:   meta.ChainID,
		Signer:    meta.Signer,
		DryRun:    meta.DryRun,
		Addresses: make(map[string]string),
	}
}

func setError(rec *Record, err error) {
	if err == nil {
		return
	}
	rec.Error = err.Error()
	if kind := resource.Classify(err); kind != nil {
		rec.ErrorClass = kind.Error()
	}
}
