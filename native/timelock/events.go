package timelock

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/core/types"
)

const (
	EventTypeChangeRequested  = "governance.change.requested"
	EventTypeChangeEffected   = "governance.change.effected"
	EventTypeChangeRevoked    = "governance.change.revoked"
	EventTypeUpgradeRequested = "governance.upgrade.requested"
	EventTypeUpgradeExecuted  = "governance.upgrade.executed"
	EventTypeUpgradeRevoked   = "governance.upgrade.revoked"
	EventTypeOwnerTransferred = "governance.owner.transferred"
)

func addr(a common.Address) string { return strings.ToLower(a.Hex()) }

func newChangeRequestedEvent(module, field, oldValue, newValue string, effectiveAt uint64) *types.Event {
	return &types.Event{
		Type: EventTypeChangeRequested,
		Attributes: map[string]string{
			"module":      module,
			"field":       field,
			"old":         oldValue,
			"new":         newValue,
			"effectiveAt": strconv.FormatUint(effectiveAt, 10),
		},
	}
}

func newChangeEffectedEvent(module, field, value string) *types.Event {
	return &types.Event{
		Type: EventTypeChangeEffected,
		Attributes: map[string]string{
			"module": module,
			"field":  field,
			"new":    value,
		},
	}
}

func newChangeRevokedEvent(module, field, dropped string) *types.Event {
	return &types.Event{
		Type: EventTypeChangeRevoked,
		Attributes: map[string]string{
			"module":  module,
			"field":   field,
			"dropped": dropped,
		},
	}
}

func newUpgradeEvent(eventType, module string, impl common.Address, dataHash common.Hash, effectiveAt uint64) *types.Event {
	attrs := map[string]string{
		"module":         module,
		"implementation": addr(impl),
	}
	if dataHash != (common.Hash{}) {
		attrs["dataHash"] = dataHash.Hex()
	}
	if effectiveAt != 0 {
		attrs["effectiveAt"] = strconv.FormatUint(effectiveAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newOwnerTransferredEvent(module string, previous, next common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeOwnerTransferred,
		Attributes: map[string]string{
			"module":   module,
			"previous": addr(previous),
			"owner":    addr(next),
		},
	}
}
