package webhook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chathive/chathive-platform/internal/messages"
	"github.com/chathive/chathive-platform/internal/whatsapp"
	"github.com/chathive/chathive-platform/pkg/logging"
)

// statusMap translates provider status keywords onto the internal
// enum. Adding a provider status is a one-line edit; keywords outside
// the table are ignored.
var statusMap = map[string]string{
	"sent":      messages.StatusSent,
	"delivered": messages.StatusDelivered,
	"read":      messages.StatusRead,
	"failed":    messages.StatusFailed,
}

type statusApplier interface {
	ApplyStatus(ctx context.Context, upd messages.StatusUpdate) (int64, error)
}

// Reconciler applies asynchronous delivery-status events to previously
// stored outbound messages.
type Reconciler struct {
	store  statusApplier
	logger *logging.Logger
}

func NewReconciler(store statusApplier, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	if store == nil {
		panic("webhook: status store cannot be nil")
	}
	return &Reconciler{store: store, logger: logger}
}

// Apply maps and persists one status event. Unrecognized keywords and
// events whose message row does not exist yet are both no-ops: the
// provider may deliver statuses before, after, or more than once
// relative to the message they describe.
func (r *Reconciler) Apply(ctx context.Context, st whatsapp.Status) error {
	mapped, ok := statusMap[st.Status]
	if !ok {
		r.logger.Debug("ignoring unrecognized status keyword", "status", st.Status, "wa_message_id", st.ID)
		return nil
	}

	upd := messages.StatusUpdate{
		WhatsAppMessageID: st.ID,
		Status:            mapped,
		StatusAt:          st.OccurredAt(),
	}
	if len(st.Errors) > 0 {
		upd.ErrorCode = strconv.Itoa(st.Errors[0].Code)
		upd.ErrorMessage = st.Errors[0].Title
	}

	rows, err := r.store.ApplyStatus(ctx, upd)
	if err != nil {
		return fmt.Errorf("webhook: reconcile status %s: %w", st.ID, err)
	}
	if rows == 0 {
		r.logger.Debug("status event for unknown message", "wa_message_id", st.ID, "status", mapped)
	}
	return nil
}
