package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchResult is the outcome of one query in a batch.
type BatchResult struct {
	Query    string
	Response *RetrievalResponse
	Err      error
}

// BatchProcessor runs many queries through a Retriever with bounded
// concurrency. Results keep the input order.
type BatchProcessor struct {
	retriever  *Retriever
	maxWorkers int
	timeout    time.Duration
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(retriever *Retriever, maxWorkers int, timeout time.Duration) *BatchProcessor {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BatchProcessor{
		retriever:  retriever,
		maxWorkers: maxWorkers,
		timeout:    timeout,
	}
}

// Process retrieves every query in mode. progress, if non-nil, is called
// once per finished query from worker goroutines.
func (bp *BatchProcessor) Process(ctx context.Context, queries []string, mode Mode, progress func(BatchResult)) ([]BatchResult, error) {
	if len(queries) == 0 {
		return []BatchResult{}, nil
	}

	processCtx, cancel := context.WithTimeout(ctx, bp.timeout)
	defer cancel()

	type workItem struct {
		index int
		query string
	}

	work := make(chan workItem, len(queries))
	for i, q := range queries {
		work <- workItem{index: i, query: q}
	}
	close(work)

	results := make([]BatchResult, len(queries))
	var wg sync.WaitGroup
	for i := 0; i < bp.maxWorkers && i < len(queries); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				res := BatchResult{Query: item.query}
				if err := processCtx.Err(); err != nil {
					res.Err = err
				} else {
					res.Response, res.Err = bp.retriever.Retrieve(processCtx, RetrievalRequest{Query: item.query, Mode: mode})
				}
				results[item.index] = res
				if progress != nil {
					progress(res)
				}
			}
		}()
	}
	wg.Wait()

	if processCtx.Err() != nil && ctx.Err() == nil {
		return results, fmt.Errorf("batch processing timeout after %v", bp.timeout)
	}
	return results, ctx.Err()
}
