package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/pipeline"
	"github.com/systemstart/many-deploy/pkg/record"
	"github.com/systemstart/many-deploy/pkg/units"
)

func TestTokenSupplies(t *testing.T) {
	ts := tokenSupplies{}
	if err := ts.Set("ZeronToken=1000000000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ts.Set("Other=0.5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := units.ParseEther("1000000000")
	if ts["ZeronToken"].Cmp(want) != 0 {
		t.Errorf("unexpected supply %s", ts["ZeronToken"])
	}
	if got := ts.String(); got != "Other=0.5,ZeronToken=1000000000" {
		t.Errorf("String() = %q", got)
	}

	for _, bad := range []string{"ZeronToken", "=5", "ZeronToken=-1", "ZeronToken=lots"} {
		if err := ts.Set(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(&pipeline.Result{State: pipeline.StateCompleted}, nil); got != 0 {
		t.Errorf("completed: got %d", got)
	}
	if got := exitCode(&pipeline.Result{State: pipeline.StateAborted}, nil); got != exitRunAborted {
		t.Errorf("aborted: got %d", got)
	}
	if got := exitCode(nil, errors.New("rejected")); got != exitPlanRejected {
		t.Errorf("rejected: got %d", got)
	}
}

func TestRecordFor(t *testing.T) {
	plan := &api.Plan{
		FilePath: "zeron.deploy.yaml",
		Steps: []api.StepConfig{
			{Name: "Router", Type: api.StepTypeDeploy, Deploy: &api.DeployConfig{Contract: "ZeronV1Router"}},
		},
	}
	res := &pipeline.Result{
		State:    pipeline.StateCompleted,
		Outcomes: []pipeline.StepOutcome{{Name: "Router", Kind: api.StepTypeDeploy, Status: pipeline.StepSucceeded}},
	}

	rec := recordFor(plan, res, nil, record.Meta{Network: "localhost"})
	if len(rec.Steps) != 1 || rec.Steps[0].Action != "deploy ZeronV1Router" {
		t.Errorf("unexpected steps %+v", rec.Steps)
	}

	rec = recordFor(plan, nil, errors.New("rejected"), record.Meta{})
	if rec.Status != record.StatusRejected {
		t.Errorf("status = %q", rec.Status)
	}
}

func TestBatchRecordDest(t *testing.T) {
	root := t.TempDir()
	plansDirectory = root
	t.Cleanup(func() { plansDirectory = "" })

	top := &api.Plan{FilePath: filepath.Join(root, "zeron.deploy.yaml"), Dir: root}
	nested := &api.Plan{FilePath: filepath.Join(root, "mainnet", "zeron.deploy.yaml"), Dir: filepath.Join(root, "mainnet")}

	if got := batchRecordDest("s3://records/", top); got != "s3://records/zeron.deploy.record.yaml" {
		t.Errorf("top: got %q", got)
	}
	if got := batchRecordDest("out", nested); got != "out/mainnet/zeron.deploy.record.yaml" {
		t.Errorf("nested: got %q", got)
	}
}

func TestSignerAddress(t *testing.T) {
	got, err := signerAddress("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("got %s", got)
	}
	if _, err := signerAddress("zz"); err == nil {
		t.Error("expected error for malformed key")
	}
}
