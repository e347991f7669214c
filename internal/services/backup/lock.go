package backup

import (
	"context"
	"crypto/sha1" //nolint:gosec // used for naming, not security
	"encoding/hex"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
)

const (
	lockPrefix         = "appbackup-"
	lockDelay          = 250 * time.Millisecond
	defaultLockTimeout = time.Minute
)

// lockName maps a source path onto a valid machine-wide mutex name.
func lockName(sourcePath string) string {
	sum := sha1.Sum([]byte(sourcePath)) //nolint:gosec
	return lockPrefix + hex.EncodeToString(sum[:])[:16]
}

func (j *Job) acquireLock(ctx context.Context) (mutex.Releaser, error) {
	timeout := j.lockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}

	j.logger.Debug().
		Str("source", j.sourcePath).
		Dur("timeout", timeout).
		Msg("acquiring source lock")

	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    lockName(j.sourcePath),
		Clock:   clock.WallClock,
		Delay:   lockDelay,
		Timeout: timeout,
		Cancel:  ctx.Done(),
	})
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", j.sourcePath, err)
	}
	return releaser, nil
}
