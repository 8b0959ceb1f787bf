package photocompressor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	"github.com/Skryldev/photo-compressor/pipeline"
)

// Registry exposes the codec registry for advanced use (e.g. registering a
// libvips backend). Prefer RegisterDecoder/RegisterEncoder.
func (c *Compressor) Registry() *core.DefaultRegistry { return c.registry }

// pipelineFor builds the compression pipeline for one CompressionConfig.
// Steps are cheap value types, so a fresh pipeline per call keeps per-call
// overrides isolated.
func (c *Compressor) pipelineFor(cc config.CompressionConfig) *pipeline.Pipeline {
	return pipeline.New().
		Use(
			&pipeline.DecodeStep{Registry: c.registry, MaxPixels: cc.MaxPixels},
			&pipeline.FitStep{MaxDimension: cc.MaxDimension},
			&pipeline.OrientStep{},
			&pipeline.AdaptiveCompressStep{
				Registry:        c.registry,
				TargetSizeBytes: cc.TargetBytes,
				InitialQuality:  config.Percent(cc.InitialQuality),
				MinQuality:      config.Percent(cc.QualityFloor),
				StepSize:        config.Percent(cc.QualityStep),
			},
		).
		AddHook(c.hooks...)
}

// compressPool fills outcomes using at most WorkerCount goroutines. Each
// goroutine writes only its own index, so order follows sources.
func (c *Compressor) compressPool(ctx context.Context, sources []core.SourceImage, outcomes []core.Outcome) {
	var g errgroup.Group
	g.SetLimit(c.cfg.WorkerCount)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			outcomes[i] = c.compressOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
}
