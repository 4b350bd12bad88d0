package transaction

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedInstruction is returned for any payload that is not exactly one of the five commands
var ErrMalformedInstruction = errors.New("malformed instruction")

// Kind identifies a command; the value is its wire tag
type Kind uint8

const (
	KindInitializeMarketplace Kind = iota
	KindCreateSellOrder
	KindBuyTokens
	KindCancelOrder
	KindUpdatePrice
)

func (k Kind) String() string {
	switch k {
	case KindInitializeMarketplace:
		return "initialize_marketplace"
	case KindCreateSellOrder:
		return "create_sell_order"
	case KindBuyTokens:
		return "buy_tokens"
	case KindCancelOrder:
		return "cancel_order"
	case KindUpdatePrice:
		return "update_price"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Instruction is one of the five marketplace commands
// The set is closed: only the types in this file implement it
type Instruction interface {
	Kind() Kind
	// Accounts lists the record references the command expects, in order
	Accounts() []string
	encodeFields(buf []byte) []byte
}

// InitializeMarketplace creates the marketplace record with a fee in basis points
type InitializeMarketplace struct {
	FeePercentage uint16 `json:"fee_percentage"`
}

// CreateSellOrder posts amount tokens for sale at price lamports each
type CreateSellOrder struct {
	Amount uint64 `json:"amount"`
	Price  uint64 `json:"price"`
}

// BuyTokens fills amount tokens of an active order
type BuyTokens struct {
	Amount uint64 `json:"amount"`
}

// CancelOrder deactivates an order
type CancelOrder struct{}

// UpdatePrice reprices an active order
type UpdatePrice struct {
	NewPrice uint64 `json:"new_price"`
}

func (InitializeMarketplace) Kind() Kind { return KindInitializeMarketplace }
func (CreateSellOrder) Kind() Kind       { return KindCreateSellOrder }
func (BuyTokens) Kind() Kind             { return KindBuyTokens }
func (CancelOrder) Kind() Kind           { return KindCancelOrder }
func (UpdatePrice) Kind() Kind           { return KindUpdatePrice }

func (InitializeMarketplace) Accounts() []string {
	return []string{"admin", "marketplace"}
}

func (CreateSellOrder) Accounts() []string {
	return []string{"seller", "seller_token_account", "order", "token_mint"}
}

func (BuyTokens) Accounts() []string {
	return []string{"buyer", "buyer_token_account", "seller", "seller_token_account", "order", "marketplace", "admin", "token_mint"}
}

func (CancelOrder) Accounts() []string {
	return []string{"seller", "seller_token_account", "order"}
}

func (UpdatePrice) Accounts() []string {
	return []string{"seller", "order"}
}

func (ix InitializeMarketplace) encodeFields(buf []byte) []byte {
	return binary.LittleEndian.AppendUint16(buf, ix.FeePercentage)
}

func (ix CreateSellOrder) encodeFields(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, ix.Amount)
	return binary.LittleEndian.AppendUint64(buf, ix.Price)
}

func (ix BuyTokens) encodeFields(buf []byte) []byte {
	return binary.LittleEndian.AppendUint64(buf, ix.Amount)
}

func (CancelOrder) encodeFields(buf []byte) []byte { return buf }

func (ix UpdatePrice) encodeFields(buf []byte) []byte {
	return binary.LittleEndian.AppendUint64(buf, ix.NewPrice)
}

// EncodeInstruction serializes a command as its tag byte followed by little-endian fields
func EncodeInstruction(ix Instruction) []byte {
	return ix.encodeFields([]byte{byte(ix.Kind())})
}

// payloadSize is the exact field length that follows each tag
var payloadSize = map[Kind]int{
	KindInitializeMarketplace: 2,
	KindCreateSellOrder:       16,
	KindBuyTokens:             8,
	KindCancelOrder:           0,
	KindUpdatePrice:           8,
}

// DecodeInstruction parses a command, requiring a known tag and the exact field length
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedInstruction)
	}
	kind := Kind(data[0])
	size, ok := payloadSize[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformedInstruction, data[0])
	}
	fields := data[1:]
	if len(fields) != size {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrMalformedInstruction, kind, size, len(fields))
	}

	switch kind {
	case KindInitializeMarketplace:
		return InitializeMarketplace{FeePercentage: binary.LittleEndian.Uint16(fields)}, nil
	case KindCreateSellOrder:
		return CreateSellOrder{
			Amount: binary.LittleEndian.Uint64(fields[0:8]),
			Price:  binary.LittleEndian.Uint64(fields[8:16]),
		}, nil
	case KindBuyTokens:
		return BuyTokens{Amount: binary.LittleEndian.Uint64(fields)}, nil
	case KindCancelOrder:
		return CancelOrder{}, nil
	default:
		return UpdatePrice{NewPrice: binary.LittleEndian.Uint64(fields)}, nil
	}
}
