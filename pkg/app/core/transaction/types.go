package transaction

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// SignedTransaction carries one encoded command, the records it references and the signatures authorizing it
// The first signature belongs to the fee payer, whose nonce provides replay protection
type SignedTransaction struct {
	Instruction []byte          `json:"instruction"` // tag byte + little-endian fields (base64 in JSON)
	Accounts    []crypto.Pubkey `json:"accounts"`    // base58 record references in declared order
	Nonce       uint64          `json:"nonce"`       // must exceed the fee payer's last accepted nonce
	Signatures  []Signature     `json:"signatures"`
}

// Signature pairs an identity with its signature over the transaction digest
type Signature struct {
	Pubkey    crypto.Pubkey `json:"pubkey"`
	Signature string        `json:"signature"` // Hex-encoded signature (0x...)
}

// New builds an unsigned transaction
func New(ix Instruction, accounts []crypto.Pubkey, nonce uint64) *SignedTransaction {
	return &SignedTransaction{
		Instruction: EncodeInstruction(ix),
		Accounts:    accounts,
		Nonce:       nonce,
	}
}

// Message returns the canonical bytes covered by signatures
// Format: u16 len || instruction || u16 count || accounts || u64 nonce (little endian)
func (tx *SignedTransaction) Message() []byte {
	buf := make([]byte, 0, 2+len(tx.Instruction)+2+len(tx.Accounts)*crypto.PubkeySize+8)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tx.Instruction)))
	buf = append(buf, tx.Instruction...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tx.Accounts)))
	for _, acc := range tx.Accounts {
		buf = append(buf, acc[:]...)
	}
	return binary.LittleEndian.AppendUint64(buf, tx.Nonce)
}

// Digest is the domain-separated hash every signer signs
func (tx *SignedTransaction) Digest(domain crypto.Domain) []byte {
	return domain.Digest(tx.Message())
}

// ID returns the transaction id, the hex digest
func (tx *SignedTransaction) ID(domain crypto.Domain) string {
	return hexutil.Encode(tx.Digest(domain))
}

// Sign appends a signature from each signer, in order
func (tx *SignedTransaction) Sign(domain crypto.Domain, signers ...*crypto.Signer) {
	digest := tx.Digest(domain)
	for _, s := range signers {
		tx.Signatures = append(tx.Signatures, Signature{
			Pubkey:    s.Pubkey(),
			Signature: hexutil.Encode(s.Sign(digest)),
		})
	}
}

// FeePayer returns the identity of the first signature
func (tx *SignedTransaction) FeePayer() (crypto.Pubkey, bool) {
	if len(tx.Signatures) == 0 {
		return crypto.Pubkey{}, false
	}
	return tx.Signatures[0].Pubkey, true
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// maxAccounts bounds the account list so the count fits its u16 prefix with room to spare
const maxAccounts = 32

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if len(tx.Instruction) == 0 {
		return fmt.Errorf("missing instruction")
	}
	if len(tx.Instruction) > 0xFFFF {
		return fmt.Errorf("instruction too large: %d bytes", len(tx.Instruction))
	}
	if len(tx.Accounts) > maxAccounts {
		return fmt.Errorf("too many accounts: %d", len(tx.Accounts))
	}
	if len(tx.Signatures) == 0 {
		return fmt.Errorf("missing signature")
	}
	return nil
}

// ParseTransaction deserializes and validates a transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}
