package main

import (
	"testing"

	"github.com/tendant/simple-imagegen/internal/job"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		name    string
		in      int64
		want    *int64
		wantErr bool
	}{
		{name: "random", in: -1},
		{name: "zero", in: 0, want: ptr(0)},
		{name: "fixed", in: 42, want: ptr(42)},
		{name: "below sentinel", in: -2, wantErr: true},
		{name: "very negative", in: -1000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSeed(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %d", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSeed(%d) returned error: %v", tt.in, err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Fatalf("expected random seed, got %d", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Fatalf("parseSeed(%d) = %v, want %d", tt.in, got, *tt.want)
			}
		})
	}
}

func TestParseSeedLeavesRangeCheckToValidation(t *testing.T) {
	got, err := parseSeed(job.MaxSeed + 1)
	if err != nil {
		t.Fatalf("parseSeed returned error: %v", err)
	}
	if _, err := job.NewJob(job.Params{Prompt: "x", Seed: got}); err == nil {
		t.Fatal("expected job validation to reject a seed above MaxSeed")
	}
}

func ptr(v int64) *int64 { return &v }
