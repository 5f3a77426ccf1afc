package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectCheckoutCompleted = "natours.checkout.completed"
	SubjectBookingCreated    = "natours.booking.created"
	checkoutQueue            = "bookings"
)

// CheckoutHandler turns a paid checkout into a booking.
type CheckoutHandler func(ctx context.Context, ev CheckoutCompleted) (*models.Booking, error)

// BookingResult is published after every processed checkout.
type BookingResult struct {
	SessionID string  `json:"sessionId"`
	BookingID string  `json:"bookingId,omitempty"`
	TourID    string  `json:"tourId"`
	Email     string  `json:"email"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

type EventBus interface {
	PublishCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error
	SubscribeCheckoutCompleted(handler CheckoutHandler) error
	Close()
}

func result(ev CheckoutCompleted, b *models.Booking, err error) BookingResult {
	r := BookingResult{SessionID: ev.SessionID, TourID: ev.TourID, Email: ev.Email, Price: ev.Price, Status: "CREATED"}
	if err != nil {
		r.Status = "FAILED"
		r.Error = err.Error()
		return r
	}
	r.BookingID = b.ID.Hex()
	return r
}

// NATSBus carries checkout events between the webhook and the booking
// writer. Subscribers share a queue group so each event is handled once.
type NATSBus struct {
	conn *nats.Conn
	log  *zap.Logger
	subs []*nats.Subscription
}

func NewNATSBus(conn *nats.Conn, log *zap.Logger) *NATSBus {
	return &NATSBus{conn: conn, log: log}
}

func (b *NATSBus) PublishCheckoutCompleted(_ context.Context, ev CheckoutCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(SubjectCheckoutCompleted, data); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectCheckoutCompleted, err)
	}
	return nil
}

func (b *NATSBus) SubscribeCheckoutCompleted(handler CheckoutHandler) error {
	sub, err := b.conn.QueueSubscribe(SubjectCheckoutCompleted, checkoutQueue, func(msg *nats.Msg) {
		var ev CheckoutCompleted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Error("failed to parse checkout event", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		booking, err := handler(ctx, ev)
		if err != nil {
			b.log.Error("failed to create booking", zap.String("session", ev.SessionID), zap.Error(err))
		} else {
			b.log.Info("booking created", zap.String("booking", booking.ID.Hex()), zap.String("tour", ev.TourID))
		}

		reply, _ := json.Marshal(result(ev, booking, err))
		_ = b.conn.Publish(SubjectBookingCreated, reply)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCheckoutCompleted, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *NATSBus) Close() {
	for _, s := range b.subs {
		_ = s.Unsubscribe()
	}
	b.subs = nil
}

// LocalBus delivers events in process when NATS is not configured.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []CheckoutHandler
	log      *zap.Logger
	results  chan BookingResult
}

func NewLocalBus(log *zap.Logger) *LocalBus {
	return &LocalBus{log: log}
}

var ErrNoSubscriber = errors.New("no checkout subscriber")

func (b *LocalBus) PublishCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	b.mu.RLock()
	handlers := b.handlers
	results := b.results
	b.mu.RUnlock()
	if len(handlers) == 0 {
		return ErrNoSubscriber
	}

	booking, err := handlers[0](ctx, ev)
	if err != nil {
		b.log.Error("failed to create booking", zap.String("session", ev.SessionID), zap.Error(err))
	}
	if results != nil {
		select {
		case results <- result(ev, booking, err):
		default:
		}
	}
	return err
}

func (b *LocalBus) SubscribeCheckoutCompleted(handler CheckoutHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

// Results exposes processed checkouts. Sends never block, so the
// channel only sees events while someone drains it.
func (b *LocalBus) Results(buffer int) <-chan BookingResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.results == nil {
		b.results = make(chan BookingResult, buffer)
	}
	return b.results
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}
