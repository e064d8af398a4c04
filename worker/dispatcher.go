package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"wagerbook/models"
	"wagerbook/service"

	log "github.com/sirupsen/logrus"
)

// Handler processes one decoded job
type Handler func(ctx context.Context, payload json.RawMessage) error

// Consumer registers a handler for a job name on the queue
type Consumer interface {
	Consume(name string, handler func(ctx context.Context, payload json.RawMessage) error) error
}

// Dispatcher routes jobs by name to the services that execute them
type Dispatcher struct {
	wagers     service.WagerService
	disputes   service.DisputeMediator
	reconciler service.Reconciler
	handlers   map[string]Handler
}

// NewDispatcher creates a dispatcher with every job handler registered
func NewDispatcher(wagers service.WagerService, disputes service.DisputeMediator, reconciler service.Reconciler) *Dispatcher {
	d := &Dispatcher{
		wagers:     wagers,
		disputes:   disputes,
		reconciler: reconciler,
	}
	d.handlers = map[string]Handler{
		models.JobSettleWager:       d.settleWager,
		models.JobContestWager:      d.contestWager,
		models.JobWithdrawalConfirm: d.confirmTransaction,
		models.JobDepositConfirm:    d.confirmTransaction,
	}
	return d
}

// JobNames lists every job the dispatcher handles
func (d *Dispatcher) JobNames() []string {
	return []string{
		models.JobSettleWager,
		models.JobContestWager,
		models.JobWithdrawalConfirm,
		models.JobDepositConfirm,
	}
}

// Register subscribes every handler on the consumer
func (d *Dispatcher) Register(consumer Consumer) error {
	for _, name := range d.JobNames() {
		name := name
		if err := consumer.Consume(name, func(ctx context.Context, payload json.RawMessage) error {
			return d.Dispatch(ctx, name, payload)
		}); err != nil {
			return fmt.Errorf("failed to register %s worker: %w", name, err)
		}
	}
	return nil
}

// Dispatch runs a job. Only transient failures are returned for redelivery;
// anything else is logged and dropped since retrying cannot fix it.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) error {
	handler, ok := d.handlers[name]
	if !ok {
		log.WithField("job", name).Error("No handler registered for job")
		return nil
	}

	err := handler(ctx, payload)
	if err == nil {
		return nil
	}

	fields := log.Fields{
		"job":     name,
		"payload": string(payload),
		"error":   err,
	}
	if kind := service.KindOf(err); kind != service.KindUnknown && kind != service.KindTransient {
		log.WithFields(fields).Warn("Dropping job that cannot succeed")
		return nil
	}
	log.WithFields(fields).Error("Job failed")
	return err
}

// FireScheduled runs a job released by the settlement scheduler
func (d *Dispatcher) FireScheduled(ctx context.Context, job models.ScheduledJob) error {
	return d.Dispatch(ctx, job.Name, job.Payload)
}

func (d *Dispatcher) settleWager(ctx context.Context, raw json.RawMessage) error {
	var payload models.SettleWagerPayload
	if err := decode(raw, &payload); err != nil {
		return err
	}
	return d.wagers.AutoSettle(ctx, payload)
}

func (d *Dispatcher) contestWager(ctx context.Context, raw json.RawMessage) error {
	var payload models.ContestWagerPayload
	if err := decode(raw, &payload); err != nil {
		return err
	}
	return d.disputes.OpenChannel(ctx, payload.WagerID)
}

func (d *Dispatcher) confirmTransaction(ctx context.Context, raw json.RawMessage) error {
	var payload models.TransactionPayload
	if err := decode(raw, &payload); err != nil {
		return err
	}
	return d.reconciler.Reconcile(ctx, payload.TransactionID)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed job payload: %v: %w", err, service.ErrInvalidRequest)
	}
	return nil
}
