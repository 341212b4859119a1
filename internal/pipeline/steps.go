package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/ingest"
)

// PipelineStep represents a single step of a compound batch operation.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the results produced so far.
type PipelineState struct {
	Import   *ingest.Result
	Classify *ClassifySummary
}

// ImportStep runs one ingestion adapter.
type ImportStep struct {
	Runner   *Runner
	Importer ingest.Importer
}

func (s *ImportStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := s.Runner.Import(ctx, s.Importer)
	if err != nil {
		return err
	}
	state.Import = result
	return nil
}

// ClassifyStep runs classify-all over every stored transaction.
type ClassifyStep struct {
	Runner *Runner
}

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	summary, err := s.Runner.ClassifyAll(ctx)
	if err != nil {
		return err
	}
	state.Classify = summary
	return nil
}

// Pipeline executes a sequence of steps in order. Completed steps are not
// undone when a later one fails.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewImportThenClassifyPipeline creates the two-step import-then-classify
// pipeline.
func NewImportThenClassifyPipeline(runner *Runner, importer ingest.Importer) *Pipeline {
	return NewPipeline(
		&ImportStep{Runner: runner, Importer: importer},
		&ClassifyStep{Runner: runner},
	)
}
