package labelgraph

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jward/labelgraph/internal/store"
)

// workItem holds everything a scan worker needs.
type workItem struct {
	path    string
	isMain  bool
	content []byte
	hash    string
	fileID  int64
	batch   *store.BatchedStore

	// Labels defined by the previous version, for affected-file tracking.
	oldDefs    []string
	oldDefHash string
}

// IndexFilesParallel indexes files using a three-phase parallel pipeline:
//
//	Phase A (serial):  Hash check, delete old data, prepare file records.
//	Phase B (parallel): Scan lines via worker pool into per-file batches.
//	Phase C (serial):  Commit batches to SQLite, track affected files.
func (e *Engine) IndexFilesParallel(ctx context.Context, paths []string) error {
	if e.affected == nil {
		e.affected = make(map[int64]bool)
	}

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, skip, err := e.prepareFile(path)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", path, err)
		}
		if skip {
			continue
		}
		item.batch = store.NewBatchedStore(e.store)
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil
	}

	// ---- Phase B: Parallel scanning ----
	numWorkers := min(runtime.NumCPU(), len(items))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type result struct {
		item workItem
		err  error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The Scanner is read-only; each item's BatchedStore handles
			// write isolation.
			for item := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{item: item, err: err}
					continue
				}
				err := e.scanFile(item.batch, item)
				resultCh <- result{item: item, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	var errs []error
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", res.item.path, res.err))
			continue
		}
		if err := e.store.CommitBatch(res.item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			continue
		}
		if err := e.finishFile(res.item, res.item.batch.DefinedNames()); err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", res.item.path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
