// Package goroutine wraps goroutine launches with panic recovery.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// SafeGo runs fn on a new goroutine. A panic inside fn is logged with
// its stack under the given name instead of killing the process; the
// goroutine still ends, so callers must not rely on fn completing.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("goroutine panicked",
					"goroutine", name,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
