package minter

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/core/types"
)

const (
	EventTypeFixedPriceSet      = "minter.fixed_price.set"
	EventTypeSwapForXAUm        = "minter.swap"
	EventTypeCollectXAUm        = "minter.collect"
	EventTypeWithdrawSystemFund = "minter.system_fund.withdrawn"
	EventTypeWithdrawToken      = "minter.token.withdrawn"
	EventTypeWithdrawNFT        = "minter.nft.withdrawn"
	EventTypeStableUpdated      = "minter.stable.updated"
	EventTypeLedgerUpdated      = "minter.ledger.updated"
)

func hexAddr(a common.Address) string { return strings.ToLower(a.Hex()) }

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newFixedPriceSetEvent(price *big.Int, validUntil uint64) *types.Event {
	return &types.Event{
		Type: EventTypeFixedPriceSet,
		Attributes: map[string]string{
			"price":      amount(price),
			"validUntil": strconv.FormatUint(validUntil, 10),
		},
	}
}

func newSwapEvent(ledger, beneficiary, fromToken common.Address, fromAmount, toAmount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSwapForXAUm,
		Attributes: map[string]string{
			"ledger":      hexAddr(ledger),
			"beneficiary": hexAddr(beneficiary),
			"fromToken":   hexAddr(fromToken),
			"fromAmount":  amount(fromAmount),
			"toAmount":    amount(toAmount),
		},
	}
}

func newCollectEvent(ledger, beneficiary common.Address, amt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCollectXAUm,
		Attributes: map[string]string{
			"ledger":      hexAddr(ledger),
			"beneficiary": hexAddr(beneficiary),
			"amount":      amount(amt),
		},
	}
}

func newWithdrawEvent(eventType string, token, to common.Address, amt *big.Int) *types.Event {
	attrs := map[string]string{
		"token": hexAddr(token),
		"to":    hexAddr(to),
	}
	if eventType == EventTypeWithdrawNFT {
		attrs["tokenId"] = amount(amt)
	} else {
		attrs["amount"] = amount(amt)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newRegistryEvent(eventType, key string, addr common.Address, allowed bool) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			key:       hexAddr(addr),
			"allowed": strconv.FormatBool(allowed),
		},
	}
}
