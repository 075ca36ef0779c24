package pipeline_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/pipeline"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  model.PipelineConfig
		wantErr bool
	}{
		{
			name:   "synthetic",
			config: model.PipelineConfig{Name: "synthetic", Stages: 8, Width: 64},
		},
		{
			name:   "empty-name-selects-synthetic",
			config: model.PipelineConfig{Stages: 2, Width: 1},
		},
		{
			name:    "unknown-name",
			config:  model.PipelineConfig{Name: "resnet50", Stages: 8, Width: 64},
			wantErr: true,
		},
		{
			name:    "too-few-stages",
			config:  model.PipelineConfig{Name: "synthetic", Stages: 1, Width: 64},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestSplitComposition verifies that running the prefix up to any boundary
// and the suffix from the same boundary produces the same output as running
// the whole pipeline at boundary 1 followed by no-op reassembly: the final
// output must not depend on where the computation was split.
func TestSplitComposition(t *testing.T) {
	const stages, width = 8, 256
	runner, err := pipeline.NewSynthetic(stages, width)
	if err != nil {
		t.Fatalf("NewSynthetic() error = %v", err)
	}
	ctx := context.Background()
	item := pipeline.MakeItems(1, width)[0]

	var want []byte
	for boundary := 1; boundary < stages; boundary++ {
		im, err := runner.RunPrefix(ctx, item, boundary)
		if err != nil {
			t.Fatalf("RunPrefix(boundary=%d) error = %v", boundary, err)
		}
		out, err := runner.RunSuffix(ctx, boundary, im)
		if err != nil {
			t.Fatalf("RunSuffix(boundary=%d) error = %v", boundary, err)
		}
		if want == nil {
			want = out
			continue
		}
		if !bytes.Equal(out, want) {
			t.Errorf("output at boundary %d differs from boundary 1", boundary)
		}
	}
}

func TestBoundaryRange(t *testing.T) {
	runner, err := pipeline.NewSynthetic(4, 16)
	if err != nil {
		t.Fatalf("NewSynthetic() error = %v", err)
	}
	ctx := context.Background()
	item := pipeline.Item{Data: make([]byte, 16)}
	for _, boundary := range []int{0, 4, 5, -1} {
		if _, err := runner.RunPrefix(ctx, item, boundary); err == nil {
			t.Errorf("RunPrefix(boundary=%d) accepted an out-of-range boundary", boundary)
		}
	}
}

func TestSuffixRejectsWrongWidth(t *testing.T) {
	runner, err := pipeline.NewSynthetic(4, 16)
	if err != nil {
		t.Fatalf("NewSynthetic() error = %v", err)
	}
	if _, err := runner.RunSuffix(context.Background(), 2, make([]byte, 15)); err == nil {
		t.Fatal("RunSuffix() accepted an intermediate of the wrong width")
	}
}

func TestMakeItemsDeterministic(t *testing.T) {
	a := pipeline.MakeItems(3, 32)
	b := pipeline.MakeItems(3, 32)
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("MakeItems() returned %d and %d items, want 3", len(a), len(b))
	}
	for i := range a {
		if a[i].Index != i {
			t.Errorf("item %d has Index %d", i, a[i].Index)
		}
		if !bytes.Equal(a[i].Data, b[i].Data) {
			t.Errorf("item %d differs between identical calls", i)
		}
	}
}

func TestPrefixCanceled(t *testing.T) {
	runner, err := pipeline.NewSynthetic(8, 16)
	if err != nil {
		t.Fatalf("NewSynthetic() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.RunPrefix(ctx, pipeline.Item{Data: make([]byte, 16)}, 4); err == nil {
		t.Fatal("RunPrefix() ignored a canceled context")
	}
}
