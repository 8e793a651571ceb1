package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/core/events"
)

// Collector aggregates payment counters off the event bus. Counters are
// in-process only; they reset on restart and are scraped as plain text.
type Collector struct {
	mu sync.Mutex

	createdTotal   int64
	byStatus       map[string]int64
	byMethod       map[string]int64
	amountSettled  decimal.Decimal
	refundsTotal   int64
	amountRefunded decimal.Decimal
}

func NewCollector() *Collector {
	return &Collector{
		byStatus:       make(map[string]int64),
		byMethod:       make(map[string]int64),
		amountSettled:  decimal.Zero,
		amountRefunded: decimal.Zero,
	}
}

// Register subscribes the collector to the payment event stream.
func (c *Collector) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentCreated, c.onPaymentCreated)
	bus.Subscribe(events.EventTypePaymentStatusChanged, c.onStatusChanged)
	bus.Subscribe(events.EventTypePaymentRefunded, c.onRefunded)
}

func (c *Collector) onPaymentCreated(ctx context.Context, event events.Event) error {
	created, ok := event.(*events.PaymentCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdTotal++
	c.byStatus[string(paymentmodel.StatusPending)]++
	c.byMethod[created.PaymentMethod]++
	return nil
}

func (c *Collector) onStatusChanged(ctx context.Context, event events.Event) error {
	changed, ok := event.(*events.PaymentStatusChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byStatus[changed.FromStatus] > 0 {
		c.byStatus[changed.FromStatus]--
	}
	c.byStatus[changed.ToStatus]++
	if changed.ToStatus == string(paymentmodel.StatusCompleted) {
		c.amountSettled = c.amountSettled.Add(changed.Amount)
	}
	return nil
}

func (c *Collector) onRefunded(ctx context.Context, event events.Event) error {
	refunded, ok := event.(*events.PaymentRefundedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byStatus[string(paymentmodel.StatusCompleted)] > 0 {
		c.byStatus[string(paymentmodel.StatusCompleted)]--
	}
	c.byStatus[string(paymentmodel.StatusRefunded)]++
	c.refundsTotal++
	c.amountRefunded = c.amountRefunded.Add(refunded.RefundAmount)
	return nil
}

// Handler renders the counters in Prometheus text exposition format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		createdTotal := c.createdTotal
		byStatus := make(map[string]int64, len(c.byStatus))
		for k, v := range c.byStatus {
			byStatus[k] = v
		}
		byMethod := make(map[string]int64, len(c.byMethod))
		for k, v := range c.byMethod {
			byMethod[k] = v
		}
		amountSettled := c.amountSettled
		refundsTotal := c.refundsTotal
		amountRefunded := c.amountRefunded
		c.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP payments_created_total Total payments created since start.\n")
		fmt.Fprintf(w, "# TYPE payments_created_total counter\n")
		fmt.Fprintf(w, "payments_created_total %d\n", createdTotal)

		fmt.Fprintf(w, "# HELP payments_by_status Current payments per status.\n")
		fmt.Fprintf(w, "# TYPE payments_by_status gauge\n")
		for _, status := range sortedKeys(byStatus) {
			fmt.Fprintf(w, "payments_by_status{status=%q} %d\n", status, byStatus[status])
		}

		fmt.Fprintf(w, "# HELP payments_by_method Payments created per method.\n")
		fmt.Fprintf(w, "# TYPE payments_by_method counter\n")
		for _, method := range sortedKeys(byMethod) {
			fmt.Fprintf(w, "payments_by_method{method=%q} %d\n", method, byMethod[method])
		}

		fmt.Fprintf(w, "# HELP total_amount_processed Sum of completed payment amounts.\n")
		fmt.Fprintf(w, "# TYPE total_amount_processed counter\n")
		fmt.Fprintf(w, "total_amount_processed %s\n", amountSettled.StringFixed(2))

		fmt.Fprintf(w, "# HELP refunds_total Total refunds issued since start.\n")
		fmt.Fprintf(w, "# TYPE refunds_total counter\n")
		fmt.Fprintf(w, "refunds_total %d\n", refundsTotal)

		fmt.Fprintf(w, "# HELP total_amount_refunded Sum of refunded amounts.\n")
		fmt.Fprintf(w, "# TYPE total_amount_refunded counter\n")
		fmt.Fprintf(w, "total_amount_refunded %s\n", amountRefunded.StringFixed(2))
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
