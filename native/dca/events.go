package dca

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/core/types"
)

const (
	EventTypeOrderCreated   = "dca.order.created"
	EventTypeOrderExecuted  = "dca.order.executed"
	EventTypeOrderCollected = "dca.order.collected"
	EventTypeOrderClaimed   = "dca.order.claimed"
	EventTypeOrderClosed    = "dca.order.closed"
	EventTypeFeeClaimed     = "dca.fee.claimed"
	EventTypeSettingUpdated = "dca.setting.updated"
	EventTypeAdapterUpdated = "dca.adapter.updated"
	EventTypeBlacklist      = "dca.blacklist.updated"
	EventTypeTokenWithdrawn = "dca.token.withdrawn"
	EventTypeNFTWithdrawn   = "dca.nft.withdrawn"
)

func hexAddr(a common.Address) string { return strings.ToLower(a.Hex()) }

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func orderAttrs(o *Order) map[string]string {
	return map[string]string{
		"id":    strconv.FormatUint(o.ID, 10),
		"owner": hexAddr(o.Owner),
	}
}

func newOrderCreatedEvent(o *Order) *types.Event {
	attrs := orderAttrs(o)
	attrs["amount"] = amount(o.DollarInitAmount)
	attrs["perTrade"] = amount(o.DollarPerTrade)
	attrs["interval"] = strconv.FormatUint(o.Interval, 10)
	attrs["receiver"] = hexAddr(o.Receiver)
	return &types.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

func newOrderExecutedEvent(o *Order, trade *Trade, mode string) *types.Event {
	attrs := orderAttrs(o)
	attrs["dollarIn"] = amount(trade.DollarIn)
	attrs["stableOut"] = amount(trade.StableOut)
	attrs["xaumOut"] = amount(trade.XaumOut)
	attrs["fee"] = amount(trade.Fee)
	attrs["mode"] = mode
	attrs["status"] = o.Status.String()
	return &types.Event{Type: EventTypeOrderExecuted, Attributes: attrs}
}

func newOrderCollectedEvent(o *Order, amt *big.Int) *types.Event {
	attrs := orderAttrs(o)
	attrs["amount"] = amount(amt)
	return &types.Event{Type: EventTypeOrderCollected, Attributes: attrs}
}

func newOrderClaimedEvent(o *Order, amt *big.Int, completed bool) *types.Event {
	attrs := orderAttrs(o)
	attrs["amount"] = amount(amt)
	attrs["receiver"] = hexAddr(o.Receiver)
	attrs["completed"] = strconv.FormatBool(completed)
	return &types.Event{Type: EventTypeOrderClaimed, Attributes: attrs}
}

func newOrderClosedEvent(o *Order, receiver common.Address, xaum, dollar *big.Int, forced bool) *types.Event {
	attrs := orderAttrs(o)
	attrs["receiver"] = hexAddr(receiver)
	attrs["xaum"] = amount(xaum)
	attrs["dollar"] = amount(dollar)
	attrs["forced"] = strconv.FormatBool(forced)
	return &types.Event{Type: EventTypeOrderClosed, Attributes: attrs}
}

func newTransferEvent(eventType string, token, to common.Address, amt *big.Int) *types.Event {
	key := "amount"
	if eventType == EventTypeNFTWithdrawn {
		key = "tokenId"
	}
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"token": hexAddr(token),
			"to":    hexAddr(to),
			key:     amount(amt),
		},
	}
}

func newSettingEvent(name, value string) *types.Event {
	return &types.Event{
		Type: EventTypeSettingUpdated,
		Attributes: map[string]string{
			"name":  name,
			"value": value,
		},
	}
}

func newFlagEvent(eventType string, addr common.Address, on bool) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"address": hexAddr(addr),
			"enabled": strconv.FormatBool(on),
		},
	}
}
