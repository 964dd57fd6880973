package pipeline

import (
	"fmt"
	"os"
)

// acquireLock takes an exclusive lock file guarding against overlapping
// scheduler-triggered runs. The file holds the owning pid. A held lock
// surfaces as an error wrapping os.ErrExist.
func acquireLock(path string) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Close()
	return func() {
		_ = os.Remove(path)
	}, nil
}
