package ocr

import (
	"context"
	"errors"
	"testing"
)

// fakeEngine returns a fixed result or error.
type fakeEngine struct {
	name string
	res  Result
	err  error
}

func (f fakeEngine) Name() string { return f.name }

func (f fakeEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if f.err != nil {
		return Result{}, f.err
	}
	res := f.res
	res.InputID = in.ID
	return res, nil
}

func TestChainFailureIsolation(t *testing.T) {
	chain := NewChain(nil,
		fakeEngine{name: "broken", err: errors.New("model missing")},
		fakeEngine{name: "good", res: Result{Text: "hello", AvgConfidence: 0.9}},
	)
	results, attempts := chain.Run(context.Background(), Input{ID: "doc-1"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Engine != "good" || results[0].Text != "hello" {
		t.Errorf("result = %+v", results[0])
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Success || attempts[0].Error == "" {
		t.Errorf("first attempt = %+v, want recorded failure", attempts[0])
	}
	if !attempts[1].Success || attempts[1].Confidence != 0.9 {
		t.Errorf("second attempt = %+v", attempts[1])
	}
}

func TestChainSyntheticResultWhenAllFail(t *testing.T) {
	chain := NewChain(nil,
		fakeEngine{name: "a", err: ErrUnavailable},
		fakeEngine{name: "b", err: ErrUnavailable},
	)
	results, attempts := chain.Run(context.Background(), Input{ID: "doc-2"})
	if len(results) != 1 {
		t.Fatalf("expected synthetic result, got %d results", len(results))
	}
	if results[0].Engine != "none" || results[0].InputID != "doc-2" || results[0].Text != "" {
		t.Errorf("synthetic result = %+v", results[0])
	}
	if len(attempts) != 2 {
		t.Errorf("expected 2 failed attempts, got %d", len(attempts))
	}
}

func TestSelectBest(t *testing.T) {
	a := Result{Engine: "a", Text: "hello world", AvgConfidence: 0.8}
	b := Result{Engine: "b", Text: "4242 4242 4242 4242", AvgConfidence: 0.6}
	c := Result{Engine: "c", Text: "hello world", AvgConfidence: 0.8}

	// Digit preference ranks the digit-heavy result first despite lower
	// confidence.
	if got := SelectBest([]Result{a, b}, true); got.Engine != "b" {
		t.Errorf("preferDigits pick = %s, want b", got.Engine)
	}
	// Without digit preference, confidence wins.
	if got := SelectBest([]Result{a, b}, false); got.Engine != "a" {
		t.Errorf("confidence pick = %s, want a", got.Engine)
	}
	// Exact ties keep chain order.
	if got := SelectBest([]Result{a, c}, false); got.Engine != "a" {
		t.Errorf("tie pick = %s, want a (chain order)", got.Engine)
	}
	if got := SelectBest(nil, false); got.Engine != "none" {
		t.Errorf("empty pick = %+v", got)
	}
}

func TestApplyOptions(t *testing.T) {
	in := Apply(Input{ID: "x"}, PANDigitsOptions()...)
	if in.Metadata["tessedit_pageseg_mode"] != "7" {
		t.Errorf("psm = %q", in.Metadata["tessedit_pageseg_mode"])
	}
	if in.Metadata["tessedit_char_whitelist"] != "0123456789 -" {
		t.Errorf("whitelist = %q", in.Metadata["tessedit_char_whitelist"])
	}
	if len(in.Languages) != 1 || in.Languages[0] != "eng" {
		t.Errorf("languages = %v", in.Languages)
	}

	// Options mutate a copy, never the original.
	base := Input{ID: "y"}
	_ = Apply(base, WithDPI(300))
	if base.DPI != 0 {
		t.Errorf("base mutated: %+v", base)
	}
}
