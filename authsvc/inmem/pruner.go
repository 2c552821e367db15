package inmem

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/robfig/cron/v3"
)

// Pruner periodically removes expired denylist entries.
type Pruner struct {
	cron   *cron.Cron
	client Client
	logger log.Logger
}

// NewPruner schedules pruning at spec, a standard five-field cron
// expression or a descriptor such as "@every 10m".
func NewPruner(c Client, spec string, logger log.Logger) (*Pruner, error) {
	p := &Pruner{cron: cron.New(), client: c, logger: logger}
	if _, err := p.cron.AddFunc(spec, p.run); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := p.client.Prune(ctx, time.Now())
	if err != nil {
		level.Error(p.logger).Log("during", "prune", "err", err)
		return
	}
	level.Debug(p.logger).Log("during", "prune", "removed", n)
}

func (p *Pruner) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
