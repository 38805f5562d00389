package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/me/coloop/internal/tasklib"
)

// builtinWorkers are the offload workers every run registers.
func builtinWorkers() map[string]tasklib.Worker {
	return map[string]tasklib.Worker{
		"sha256": sha256Worker,
		"sleep":  sleepWorker,
	}
}

// sha256Worker hashes a string and returns the hex digest.
func sha256Worker(ctx context.Context, input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("sha256: want a string, got %T", input)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

// sleepWorker blocks for the given number of milliseconds off the script
// goroutine and returns it.
func sleepWorker(ctx context.Context, input any) (any, error) {
	var ms int64
	switch v := input.(type) {
	case int64:
		ms = v
	case float64:
		if math.IsNaN(v) || v < 0 {
			return nil, fmt.Errorf("sleep: invalid duration %v", v)
		}
		ms = int64(min(v, float64(tasklib.MaxWaitMillis)))
	default:
		return nil, fmt.Errorf("sleep: want milliseconds, got %T", input)
	}
	if ms < 0 {
		return nil, fmt.Errorf("sleep: negative duration %d", ms)
	}
	ms = min(ms, tasklib.MaxWaitMillis)
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return ms, nil
	}
}
