package order

import (
	"testing"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("LOST")
	assert.ErrorIs(t, err, domainerr.ErrInvalidEntity)
}

func TestStateMachineNext(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		current Status
		event   Event
		want    Status
		wantErr error
	}{
		{"confirm pending", true, StatusPending, EventConfirm, StatusConfirmed, nil},
		{"confirm confirmed", true, StatusConfirmed, EventConfirm, "", domainerr.ErrInvalidAction},
		{"confirm paid permissive", false, StatusPaid, EventConfirm, "", domainerr.ErrInvalidAction},
		{"cancel pending", true, StatusPending, EventCancel, StatusCanceled, nil},
		{"cancel confirmed", false, StatusConfirmed, EventCancel, StatusCanceled, nil},
		{"cancel shipped", false, StatusShipped, EventCancel, "", domainerr.ErrInvalidAction},
		{"cancel canceled", true, StatusCanceled, EventCancel, "", domainerr.ErrInvalidAction},
		{"pay pending", true, StatusPending, EventPaymentCompleted, StatusPaid, nil},
		{"pay replay", true, StatusPaid, EventPaymentCompleted, StatusPaid, nil},
		{"pay canceled strict", true, StatusCanceled, EventPaymentCompleted, "", domainerr.ErrInvalidAction},
		{"pay canceled permissive", false, StatusCanceled, EventPaymentCompleted, StatusPaid, nil},
		{"ship paid", true, StatusPaid, EventShip, StatusShipped, nil},
		{"ship pending strict", true, StatusPending, EventShip, "", domainerr.ErrInvalidAction},
		{"deliver pending permissive", false, StatusPending, EventDeliver, StatusFinished, nil},
		{"deliver pending strict", true, StatusPending, EventDeliver, "", domainerr.ErrInvalidAction},
		{"deliver shipped", true, StatusShipped, EventDeliver, StatusFinished, nil},
		{"kitchen flow", true, StatusReceived, EventPrepare, StatusPreparing, nil},
		{"unknown event", true, StatusPending, Event("teleport"), "", domainerr.ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStateMachine(tt.strict).Next(tt.current, tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateMachineTarget(t *testing.T) {
	permissive := NewStateMachine(false)
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got, err := permissive.Target(from, to)
			require.NoError(t, err)
			assert.Equal(t, to, got)
		}
	}

	strict := NewStateMachine(true)

	got, err := strict.Target(StatusShipped, StatusFinished)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got)

	_, err = strict.Target(StatusPending, StatusFinished)
	assert.ErrorIs(t, err, domainerr.ErrInvalidAction)

	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCanceled} {
		_, err = strict.Target(StatusPending, s)
		assert.ErrorIs(t, err, domainerr.ErrInvalidAction, s)
	}

	_, err = strict.Target(StatusPending, Status("LOST"))
	assert.ErrorIs(t, err, domainerr.ErrInvalidEntity)
}
