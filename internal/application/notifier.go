package application

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fibermap/internal/logging"
	"fibermap/internal/observability"
	"fibermap/internal/ports"
)

// FanoutNotifier доставляє подію в усі канали паралельно, у фоні.
// Помилка одного каналу не заважає іншим.
type FanoutNotifier struct {
	sinks   []ports.NotificationSink
	timeout time.Duration
	log     logging.Logger
	metrics *observability.Collector
	wg      sync.WaitGroup
}

// NewFanoutNotifier створює новий екземпляр FanoutNotifier
func NewFanoutNotifier(timeout time.Duration, log logging.Logger, metrics *observability.Collector, sinks ...ports.NotificationSink) *FanoutNotifier {
	if log == nil {
		log = logging.Noop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FanoutNotifier{
		sinks:   sinks,
		timeout: timeout,
		log:     log.With(logging.String("component", "notifier")),
		metrics: metrics,
	}
}

// Notify повертається одразу; доставка не прив'язана до скасування ctx запиту
func (n *FanoutNotifier) Notify(ctx context.Context, event ports.FaultEvent) {
	if len(n.sinks) == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		var g errgroup.Group
		for _, sink := range n.sinks {
			g.Go(func() error {
				err := sink.Deliver(ctx, event)
				n.metrics.ObserveDelivery(sink.Name(), err)
				if err != nil {
					n.log.Error(ctx, "notification delivery failed",
						logging.String("sink", sink.Name()),
						logging.String("event", string(event.Type)),
						logging.String("fault_id", event.Fault.ID.String()),
						logging.Err(err),
					)
				}
				return err
			})
		}
		_ = g.Wait()
	}()
}

// Wait чекає завершення всіх доставок, що вже почалися
func (n *FanoutNotifier) Wait() {
	n.wg.Wait()
}
