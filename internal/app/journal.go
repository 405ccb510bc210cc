package app

import (
	"context"
	"time"

	"cronpump/internal/storage"
	"cronpump/internal/task/engine"
	logx "cronpump/pkg/logx"
)

const journalWriteTimeout = 2 * time.Second

// journalRuns copies finished executions from the bus into the store until
// ctx ends. Runs dropped by a full subscriber buffer are not journaled.
func (a *App) journalRuns(ctx context.Context) {
	events, unsub := a.bus.Subscribe(256, engine.EventFinished, engine.EventFailed, engine.EventPanicked)
	defer unsub()
	log := a.log.With(logx.String("comp", "journal"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev, ok := e.Data.(engine.TaskEvent)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
			err := a.store.AppendRun(wctx, runFromEvent(ev))
			cancel()
			if err != nil {
				log.Warn("journal append failed", logx.String("rule", ev.Rule), logx.Err(err))
			}
		}
	}
}

func runFromEvent(ev engine.TaskEvent) storage.Run {
	return storage.Run{
		MatchID:   ev.MatchID,
		Rule:      ev.Rule,
		Scheduled: ev.Scheduled,
		Started:   ev.Started,
		TookMS:    ev.Duration.Milliseconds(),
		Result:    string(ev.Result),
		Error:     ev.Error,
	}
}
