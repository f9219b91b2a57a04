package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers    = 2
	defaultMaxRetries = 3
)

// Dispatcher delivers mail asynchronously through a buffered channel so a
// slow SMTP relay never blocks a request handler. It is safe for concurrent
// use and suitable for single-instance deployments.
type Dispatcher struct {
	sender     Sender
	baseURL    string
	msgChan    chan Message
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	maxRetries int
	log        zerolog.Logger
}

// NewDispatcher creates a dispatcher. bufferSize determines how many messages
// can be queued before SendInvite blocks.
func NewDispatcher(sender Sender, baseURL string, bufferSize int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		baseURL:    baseURL,
		msgChan:    make(chan Message, bufferSize),
		closeChan:  make(chan struct{}),
		maxRetries: defaultMaxRetries,
		log:        log,
	}
}

// SendInvite renders and enqueues an invitation email. The enqueue succeeds
// even though delivery happens later; delivery failures are retried and then
// logged.
func (d *Dispatcher) SendInvite(ctx context.Context, email, budgetName, token string) error {
	msg, err := InviteMessage(d.baseURL, email, budgetName, token)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, msg)
}

func (d *Dispatcher) enqueue(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return fmt.Errorf("mail dispatcher is closed")
	}

	select {
	case d.msgChan <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closeChan:
		return fmt.Errorf("mail dispatcher is closed")
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < defaultWorkers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closeChan:
			return
		case msg := <-d.msgChan:
			d.deliver(ctx, msg)
		}
	}
}

// deliver attempts the send with linear backoff between retries.
func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return
			}
		}
		if err = d.sender.Send(ctx, msg); err == nil {
			d.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Mail delivered")
			return
		}
	}
	d.log.Error().Err(err).Str("to", msg.To).Msg("Giving up on mail delivery")
}

// Stop closes the queue and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.closeChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
