package api

import (
	"context"

	"github.com/use-agent/scrollgrab/api/handler"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/pipeline"
)

// PipelineRunner returns the production Runner. Pipelines are single-use, so
// every call constructs a fresh one.
func PipelineRunner() handler.Runner {
	return func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
		return pipeline.New(cfg, targetURL, outputDir).Run(ctx)
	}
}
