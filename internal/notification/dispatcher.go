// Package notification turns lifecycle events into durable per-recipient
// records and delivers them live, in order, to connected listeners.
package notification

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/subscription"
)

// LivePublisher offers a message to a user's open listeners and reports
// how many accepted it.
type LivePublisher interface {
	Publish(userID string, msg subscription.Message) int
}

// Options tunes a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	Pusher    *WebPusher     // nil disables web push
	Events    EventPublisher // nil disables the event stream
	Now       func() time.Time
}

// Dispatcher writes notification records alongside reservation changes and
// delivers them once the change commits.
//
// Records for one recipient always go through the same worker, so live
// delivery per recipient follows creation order.
type Dispatcher struct {
	db       *gorm.DB
	registry LivePublisher
	pusher   *WebPusher
	events   EventPublisher
	log      *zap.Logger
	now      func() time.Time

	queues []chan model.NotificationRecord
	order  *recipientLocks
	seq    atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start to run its workers.
func NewDispatcher(db *gorm.DB, registry LivePublisher, log *zap.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Events == nil {
		opts.Events = NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		db:       db,
		registry: registry,
		pusher:   opts.Pusher,
		events:   opts.Events,
		log:      log,
		now:      opts.Now,
		queues:   make([]chan model.NotificationRecord, opts.Workers),
		order:    newRecipientLocks(),
	}
	for i := range d.queues {
		d.queues[i] = make(chan model.NotificationRecord, opts.QueueSize)
	}
	// Seeded from the clock so sequence numbers keep growing across restarts.
	d.seq.Store(time.Now().UnixNano())
	return d
}

// Start launches one worker per queue. Workers stop when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, q := range d.queues {
		go d.worker(ctx, i, q)
	}
}

// Batch is a set of records staged inside a transaction. Exactly one of
// Commit or Abort must be called once the transaction has finished.
type Batch struct {
	d       *Dispatcher
	event   Event
	records []model.NotificationRecord
	unlock  func()
	done    sync.Once
}

// Records returns the staged records.
func (b *Batch) Records() []model.NotificationRecord {
	return b.records
}

// Stage inserts one record per recipient of ev using tx. The recipients stay
// locked until the batch is committed or aborted.
func (d *Dispatcher) Stage(tx *gorm.DB, ev Event) (*Batch, error) {
	rcpts := recipients(ev)
	payload, err := json.Marshal(NewPayload(ev))
	if err != nil {
		return nil, err
	}

	unlock := d.order.lockAll(rcpts)
	now := d.now().UTC()
	r := ev.Reservation()
	records := make([]model.NotificationRecord, 0, len(rcpts))
	for _, id := range rcpts {
		records = append(records, model.NotificationRecord{
			ID:                   uuid.NewString(),
			RecipientID:          id,
			Seq:                  d.seq.Add(1),
			Kind:                 string(ev.Kind()),
			Payload:              datatypes.JSON(payload),
			CreatedAt:            now,
			RelatedReservationID: r.ID,
		})
	}
	if len(records) > 0 {
		if err := tx.Create(&records).Error; err != nil {
			unlock()
			return nil, apperror.FromStorage(err)
		}
	}
	return &Batch{d: d, event: ev, records: records, unlock: unlock}, nil
}

// Commit queues the records for live delivery and publishes the event.
// Call it only after the transaction that staged the batch has committed.
func (b *Batch) Commit() {
	b.done.Do(func() {
		for _, rec := range b.records {
			b.d.enqueue(rec)
		}
		b.unlock()
		if err := b.d.events.Publish(context.Background(), NewPayload(b.event)); err != nil {
			b.d.log.Warn("publish lifecycle event", zap.String("kind", string(b.event.Kind())), zap.Error(err))
		}
	})
}

// Abort releases the recipients without delivering anything.
func (b *Batch) Abort() {
	b.done.Do(b.unlock)
}

// Emit records and delivers ev in its own transaction.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) ([]model.NotificationRecord, error) {
	var batch *Batch
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = d.Stage(tx, ev)
		return err
	})
	if err != nil {
		if batch != nil {
			batch.Abort()
		}
		return nil, apperror.FromStorage(err)
	}
	batch.Commit()
	return batch.Records(), nil
}

// enqueue hands rec to its recipient's worker. A full queue drops the live
// copy; the record stays in the store for catch-up.
func (d *Dispatcher) enqueue(rec model.NotificationRecord) {
	q := d.queues[d.shard(rec.RecipientID)]
	select {
	case q <- rec:
	default:
		d.log.Warn("notification queue full, live delivery skipped",
			zap.String("recipient", rec.RecipientID),
			zap.String("notification_id", rec.ID))
	}
}

func (d *Dispatcher) shard(recipientID string) int {
	h := fnv.New32a()
	h.Write([]byte(recipientID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, jobs <-chan model.NotificationRecord) {
	d.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case rec := <-jobs:
			d.deliver(ctx, rec)
		case <-ctx.Done():
			d.log.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec model.NotificationRecord) {
	msg := subscription.Message{
		ID:            rec.ID,
		Kind:          rec.Kind,
		ReservationID: rec.RelatedReservationID,
		Payload:       rec.Payload,
	}
	if n := d.registry.Publish(rec.RecipientID, msg); n > 0 {
		err := d.db.WithContext(ctx).
			Model(&model.NotificationRecord{}).
			Where("id = ?", rec.ID).
			Update("delivered_live", true).Error
		if err != nil {
			d.log.Warn("mark notification delivered", zap.String("notification_id", rec.ID), zap.Error(err))
		}
	} else {
		d.log.Debug("recipient offline", zap.String("recipient", rec.RecipientID), zap.String("notification_id", rec.ID))
	}

	if d.pusher != nil {
		d.pusher.Push(ctx, rec.RecipientID, rec.Payload)
	}
}
