package trace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// StartHeartbeat emits a heartbeat event every interval until ctx is done or
// the returned stop function is called. Each beat reports how many spans
// were opened since the previous one; a run of beats reporting "stalled"
// points at a check or unit that does not finish.
func StartHeartbeat(ctx context.Context, t Tracer, interval time.Duration) (stop func()) {
	if t == nil || !t.Enabled() || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		beat(ctx, t, interval)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func beat(ctx context.Context, t Tracer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := atomic.LoadUint64(&globalSpans)
	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			spans := atomic.LoadUint64(&globalSpans)
			t.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    getGoroutineID(),
				Name:   "heartbeat",
				Detail: heartbeatDetail(seq, spans-last),
			})
			last = spans
		}
	}
}

func heartbeatDetail(seq int, opened uint64) string {
	if opened == 0 {
		return fmt.Sprintf("#%d stalled", seq)
	}
	return fmt.Sprintf("#%d %d spans", seq, opened)
}
