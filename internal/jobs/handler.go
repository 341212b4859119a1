package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/pipeline"
)

// NewHandler returns a JobHandler that runs jobs on runner. sheet may be nil
// when no spreadsheet is configured; sheet jobs then fail.
func NewHandler(runner *pipeline.Runner, sheet ingest.Importer) JobHandler {
	return func(ctx context.Context, job *Job) (interface{}, error) {
		log := logger.FromContext(ctx).With().
			Str("job_id", job.JobID).
			Str("job_type", string(job.Type)).
			Logger()
		ctx = logger.WithContext(ctx, log)

		switch job.Type {
		case JobTypeClassifyAll:
			return runner.ClassifyAll(ctx)
		case JobTypeImportSheet:
			if sheet == nil {
				return nil, fmt.Errorf("job %s: no spreadsheet configured", job.Type)
			}
			return runner.Import(ctx, sheet)
		case JobTypeImportThenClassify:
			if sheet == nil {
				return nil, fmt.Errorf("job %s: no spreadsheet configured", job.Type)
			}
			return runner.ImportThenClassify(ctx, sheet)
		default:
			return nil, fmt.Errorf("unknown job type %q", job.Type)
		}
	}
}
