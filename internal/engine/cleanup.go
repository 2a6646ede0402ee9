package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oversight/internal/domain"
)

const cleanupTimeout = 30 * time.Second

type cleanupQueue struct {
	wg sync.WaitGroup
}

// discardFile deletes a file after its metadata has been committed away.
// It runs in the background; failure is logged and reported on
// DependencyErrors but never touches the committed state.
func (e Engine) discardFile(objectID, path string) {
	if e.Files == nil || path == "" {
		return
	}
	q := e.cleanup
	if q == nil {
		q = &cleanupQueue{}
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := e.Files.Delete(ctx, path); err != nil {
			err = fmt.Errorf("%w: delete %s: %v", domain.ErrDependencyFailure, path, err)
			e.logger().Warn("document cleanup failed", "object_id", objectID, "path", path, "err", err)
			if e.DependencyErrors != nil {
				select {
				case e.DependencyErrors <- err:
				default:
				}
			}
			return
		}
		e.logger().Debug("document file removed", "object_id", objectID, "path", path)
	}()
}

// WaitCleanup blocks until queued file deletions have finished.
func (e Engine) WaitCleanup() {
	if e.cleanup != nil {
		e.cleanup.wg.Wait()
	}
}
