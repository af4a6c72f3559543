package cloudsync

import (
	"context"
	"sync"
	"time"
)

// Trigger decides when a pull runs. Run blocks until ctx is done.
type Trigger interface {
	Run(ctx context.Context, fire func(context.Context))
}

// Ticker fires every Interval.
type Ticker struct {
	Interval time.Duration
}

func (t Ticker) Run(ctx context.Context, fire func(context.Context)) {
	if t.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}

// Push fires when the store reports a change to RecordType in Zone. An empty
// RecordType matches every change. A broken feed is reopened after Retry.
type Push struct {
	Source     NotificationSource
	Zone       string
	RecordType string
	Retry      time.Duration
}

func (p Push) Run(ctx context.Context, fire func(context.Context)) {
	retry := p.Retry
	if retry <= 0 {
		retry = 5 * time.Second
	}
	for {
		ch, err := p.Source.Notifications(ctx, p.Zone)
		if err == nil {
			p.drain(ctx, ch, fire)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func (p Push) drain(ctx context.Context, ch <-chan Notification, fire func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if p.RecordType == "" || n.RecordType == p.RecordType {
				fire(ctx)
			}
		}
	}
}

// Multi runs several triggers against the same fire func.
type Multi []Trigger

func (m Multi) Run(ctx context.Context, fire func(context.Context)) {
	var wg sync.WaitGroup
	for _, t := range m {
		wg.Add(1)
		go func(t Trigger) {
			defer wg.Done()
			t.Run(ctx, fire)
		}(t)
	}
	wg.Wait()
}
