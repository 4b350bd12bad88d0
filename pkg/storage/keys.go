package storage

import (
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Pebble key schema
// Every key starts with a short prefix so unrelated state never collides,
// and identities are rendered in base58 so keys stay readable in dumps.

// Key prefixes
const (
	prefixRecord      = "rec:"        // Program record bytes (marketplace, sell orders)
	prefixRent        = "rent:"       // Rent deposit paid when a record was allocated
	prefixBalance     = "bal:"        // Native lamport balance
	prefixToken       = "tok:"        // Token account
	prefixNonce       = "nonce:"      // Last accepted transaction nonce
	prefixSellerIndex = "idx:seller:" // Orders posted by a seller
	prefixOrderToken  = "ordtok:"     // Token account backing an order's delegation
	keyGenesis        = "meta:genesis"
)

// recordKey returns the key for a program record
// Format: "rec:{handle}"
func recordKey(handle crypto.Pubkey) []byte {
	return []byte(prefixRecord + handle.String())
}

// rentKey returns the key holding a record's rent deposit
// Format: "rent:{handle}"
func rentKey(handle crypto.Pubkey) []byte {
	return []byte(prefixRent + handle.String())
}

// balanceKey returns the key for a lamport balance
// Format: "bal:{identity}"
func balanceKey(id crypto.Pubkey) []byte {
	return []byte(prefixBalance + id.String())
}

// tokenKey returns the key for a token account
// Format: "tok:{handle}"
func tokenKey(handle crypto.Pubkey) []byte {
	return []byte(prefixToken + handle.String())
}

// nonceKey returns the key for an identity's nonce
// Format: "nonce:{identity}"
func nonceKey(id crypto.Pubkey) []byte {
	return []byte(prefixNonce + id.String())
}

// sellerIndexKey returns the index entry linking a seller to one of its orders
// Format: "idx:seller:{seller}:{order}"
func sellerIndexKey(seller, order crypto.Pubkey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixSellerIndex, seller, order))
}

// orderTokenKey returns the key naming the token account an order was created from
// Format: "ordtok:{order}"
func orderTokenKey(order crypto.Pubkey) []byte {
	return []byte(prefixOrderToken + order.String())
}

// sellerIndexPrefix returns the prefix for all orders of a seller
// Format: "idx:seller:{seller}:"
func sellerIndexPrefix(seller crypto.Pubkey) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixSellerIndex, seller))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "idx:seller:abc:" -> upper bound "idx:seller:abc;"
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// orderFromIndexKey extracts the order handle from a seller index key
func orderFromIndexKey(prefix, key []byte) (crypto.Pubkey, error) {
	if len(key) <= len(prefix) {
		return crypto.Pubkey{}, fmt.Errorf("invalid index key length: %d", len(key))
	}
	return crypto.ParsePubkey(string(key[len(prefix):]))
}
