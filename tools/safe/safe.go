package safe

import (
	"github.com/convoylab/convoy/logger"
)

// Go starts a goroutine that recovers from panic,
// so one misbehaving handler cannot crash the process.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
