package actuator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quote-trigger-go/config"
	"quote-trigger-go/infrastructure/logger"
)

// Logging dry-run 执行器：只记录选中的坐标，不做任何外部操作。
type Logging struct {
	log *logger.Logger
	rnd Rand
}

func NewLogging(log *logger.Logger, rnd Rand) *Logging {
	if log == nil {
		log = logger.NewNop()
	}
	if rnd == nil {
		rnd = DefaultRand
	}
	return &Logging{log: log, rnd: rnd}
}

func (l *Logging) PerformWithin(ctx context.Context, r config.Region) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := PickPoint(r, l.rnd)
	if err != nil {
		return err
	}
	l.log.Info("dry-run click",
		zap.Uint32("x", p.X),
		zap.Uint32("y", p.Y),
	)
	return nil
}

func (l *Logging) Wait(d time.Duration) { sleep(d) }
