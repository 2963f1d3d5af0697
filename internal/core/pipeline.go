package core

import (
	"context"
	"fmt"
	"log"
	"sync"
)

type PipelineRunner[In any, Out any] struct {
	Source    Source[In]
	Processor Processor[In, Out]
	Sink      Sink[Out]
	Config    PipelineConfig
}

type PipelineConfig struct {
	Concurrency int
	Name        string
}

func NewPipelineRunner[In any, Out any](src Source[In], proc Processor[In, Out], sink Sink[Out], cfg PipelineConfig) *PipelineRunner[In, Out] {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &PipelineRunner[In, Out]{
		Source:    src,
		Processor: proc,
		Sink:      sink,
		Config:    cfg,
	}
}

// Run fans items out to a bounded worker pool. Processing errors are logged
// and the item is skipped; only sink failures abort the run. Completion order
// at the sink is not input order.
func (p *PipelineRunner[In, Out]) Run(ctx context.Context) error {
	// The derived context also stops the source feeder when a worker aborts,
	// so a sink failure cannot strand it on a blocked send.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := p.Source.Stream(ctx)
	if err != nil {
		return fmt.Errorf("pipeline [%s] source error: %w", p.Config.Name, err)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, p.Config.Concurrency)

	for i := 0; i < p.Config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range stream {
				select {
				case <-ctx.Done():
					return
				default:
				}

				result, err := p.Processor.Process(ctx, item)
				if err != nil {
					log.Printf("[%s] worker %d: %v", p.Config.Name, workerID, err)
					continue
				}

				if err := p.Sink.Write(ctx, result); err != nil {
					select {
					case errChan <- fmt.Errorf("sink write error: %w", err):
					default:
					}
					cancel()
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errChan)
	if len(errChan) > 0 {
		return <-errChan
	}

	return nil
}
