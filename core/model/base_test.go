package model

import (
	"bytes"
	"encoding/gob"
	"testing"
)

func TestBaseEstimatorStateTransitions(t *testing.T) {
	var e BaseEstimator
	if e.IsFitted() {
		t.Error("new estimator reports fitted")
	}
	e.SetFitted()
	if !e.IsFitted() {
		t.Error("SetFitted did not stick")
	}
	e.Reset()
	if e.IsFitted() {
		t.Error("Reset did not clear fitted state")
	}
}

type gobEstimator struct {
	BaseEstimator
	Weight float64
}

func TestBaseEstimatorSurvivesGob(t *testing.T) {
	in := &gobEstimator{Weight: 2.5}
	in.SetFitted()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(in); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out := &gobEstimator{}
	if err := gob.NewDecoder(&buf).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.IsFitted() {
		t.Error("fitted state lost in round trip")
	}
	if out.Weight != in.Weight {
		t.Errorf("Weight = %v, want %v", out.Weight, in.Weight)
	}
}
