// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"sync"

	"github.com/raykavin/hedgerun/pkg/core"
	log "github.com/sirupsen/logrus"
)

const defaultQueueSize = 256

// Dispatcher fans alerts out to several notifiers from a background goroutine, so
// a slow channel never holds up the engines. Alerts are dropped when the queue is
// full.
type Dispatcher struct {
	notifiers []core.Notifier
	queue     chan core.Alert
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

var _ core.NotifierWithStart = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with room for size pending alerts
func NewDispatcher(size int, notifiers ...core.Notifier) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan core.Alert, size),
		done:      make(chan struct{}),
	}
}

// Start starts the delivery loop and every notifier that owns a loop of its own
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for _, notifier := range d.notifiers {
			if starter, ok := notifier.(core.NotifierWithStart); ok {
				starter.Start()
			}
		}

		d.wg.Add(1)
		go d.loop()
	})
}

// Stop delivers what is still queued and stops the loop
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// Notify queues an alert without blocking
func (d *Dispatcher) Notify(_ context.Context, alert core.Alert) {
	select {
	case d.queue <- alert:
	default:
		log.WithField("model", alert.Model).Warn("notification/dispatcher: queue full, alert dropped: ", alert.Message)
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case alert := <-d.queue:
			d.deliver(alert)
		case <-d.done:
			for {
				select {
				case alert := <-d.queue:
					d.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(alert core.Alert) {
	for _, notifier := range d.notifiers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("notification/dispatcher: notifier panicked: %v", r)
				}
			}()
			notifier.Notify(context.Background(), alert)
		}()
	}
}
