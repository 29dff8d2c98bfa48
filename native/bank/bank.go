package bank

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "xaumdca/core/errors"
	corestate "xaumdca/core/state"
)

var (
	ErrUnknownToken        = fmt.Errorf("bank: unknown token")
	ErrInsufficientBalance = fmt.Errorf("bank: %w: insufficient balance", coreerrors.ErrInvalidAmount)
	ErrNotTokenOwner       = fmt.Errorf("bank: %w: not token owner", coreerrors.ErrUnauthorized)
)

// Metadata describes a registered fungible token.
type Metadata struct {
	Symbol   string
	Decimals uint8
}

// Bank is the fungible and non-fungible balance service every engine moves
// value through. Balances live in the shared state manager so a reverted
// operation also reverts its transfers.
type Bank struct {
	state *corestate.Manager
}

// New returns a bank backed by manager.
func New(manager *corestate.Manager) *Bank {
	return &Bank{state: manager}
}

func tokenKey(token common.Address) []byte {
	return []byte("bank/token/" + strings.ToLower(token.Hex()))
}

func balanceKey(token, holder common.Address) []byte {
	return []byte("bank/balance/" + strings.ToLower(token.Hex()) + "/" + strings.ToLower(holder.Hex()))
}

func nftKey(collection common.Address, id *big.Int) []byte {
	return []byte("bank/nft/" + strings.ToLower(collection.Hex()) + "/" + id.String())
}

// Register records token metadata. Re-registering an address fails.
func (b *Bank) Register(token common.Address, symbol string, decimals uint8) error {
	if b == nil || b.state == nil {
		return fmt.Errorf("bank: state manager required")
	}
	if token == (common.Address{}) {
		return fmt.Errorf("bank: token address must not be zero")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("bank: token symbol must not be empty")
	}
	if ok, err := b.state.KVGet(tokenKey(token), nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("bank: token %s already registered", token.Hex())
	}
	return b.state.KVPut(tokenKey(token), &Metadata{Symbol: symbol, Decimals: decimals})
}

// Metadata returns the registration details for token.
func (b *Bank) Metadata(token common.Address) (*Metadata, error) {
	meta := new(Metadata)
	ok, err := b.state.KVGet(tokenKey(token), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return meta, nil
}

// Decimals returns the fixed decimal precision of token.
func (b *Bank) Decimals(token common.Address) (uint8, error) {
	meta, err := b.Metadata(token)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// BalanceOf returns holder's balance of token. Unregistered tokens fail.
func (b *Bank) BalanceOf(token, holder common.Address) (*big.Int, error) {
	if _, err := b.Metadata(token); err != nil {
		return nil, err
	}
	return b.balance(token, holder)
}

func (b *Bank) balance(token, holder common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := b.state.KVGet(balanceKey(token, holder), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (b *Bank) setBalance(token, holder common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return b.state.KVDelete(balanceKey(token, holder))
	}
	return b.state.KVPut(balanceKey(token, holder), amount)
}

// Transfer moves amount of token from one holder to another. It fails without
// side effects when the sender's balance is insufficient.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: %w: negative transfer amount", coreerrors.ErrInvalidAmount)
	}
	if _, err := b.Metadata(token); err != nil {
		return err
	}
	return b.state.Atomic(func() error {
		fromBal, err := b.balance(token, from)
		if err != nil {
			return err
		}
		if fromBal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, amount)
		}
		if from == to {
			return nil
		}
		if err := b.setBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		toBal, err := b.balance(token, to)
		if err != nil {
			return err
		}
		return b.setBalance(token, to, new(big.Int).Add(toBal, amount))
	})
}

// Mint credits amount of token to holder. A positive mint into a ledger's
// custody is also how a rebasing supply change is modelled.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: %w: mint amount must be positive", coreerrors.ErrInvalidAmount)
	}
	if _, err := b.Metadata(token); err != nil {
		return err
	}
	bal, err := b.balance(token, to)
	if err != nil {
		return err
	}
	return b.setBalance(token, to, new(big.Int).Add(bal, amount))
}

// OwnerOf returns the holder of a non-fungible token, or the zero address.
func (b *Bank) OwnerOf(collection common.Address, id *big.Int) (common.Address, error) {
	var owner common.Address
	if id == nil || id.Sign() < 0 {
		return owner, fmt.Errorf("bank: invalid token id")
	}
	if _, err := b.state.KVGet(nftKey(collection, id), &owner); err != nil {
		return owner, err
	}
	return owner, nil
}

// MintNFT assigns a fresh non-fungible token to holder.
func (b *Bank) MintNFT(collection, to common.Address, id *big.Int) error {
	owner, err := b.OwnerOf(collection, id)
	if err != nil {
		return err
	}
	if owner != (common.Address{}) {
		return fmt.Errorf("bank: token %s/%s already minted", collection.Hex(), id)
	}
	return b.state.KVPut(nftKey(collection, id), to)
}

// TransferNFT moves a non-fungible token held by from.
func (b *Bank) TransferNFT(collection, from, to common.Address, id *big.Int) error {
	owner, err := b.OwnerOf(collection, id)
	if err != nil {
		return err
	}
	if owner != from || owner == (common.Address{}) {
		return fmt.Errorf("%w: %s/%s", ErrNotTokenOwner, collection.Hex(), id)
	}
	return b.state.KVPut(nftKey(collection, id), to)
}
