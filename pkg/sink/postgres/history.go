package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/uhyunpark/hyperswap/pkg/app/market"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// History records every committed event and serves trade history per order
type History struct {
	pool *Pool
}

func NewHistory(pool *Pool) *History {
	return &History{pool: pool}
}

var _ market.Sink = (*History)(nil)

// Publish inserts one event. Redelivery of the same (tx, type) is a no-op
func (h *History) Publish(ctx context.Context, ev market.Event) error {
	query := `
		INSERT INTO marketplace_events (
			tx_id, event_type, marketplace, admin, order_handle, seller, buyer, mint,
			amount, price, fee_percentage, total_price, fee, seller_proceeds, ts
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::numeric, $10::numeric, $11, $12::numeric, $13::numeric, $14::numeric, $15
		)
		ON CONFLICT (tx_id, event_type) DO NOTHING
	`

	_, err := h.pool.Exec(ctx, query,
		ev.TxID,
		string(ev.Type),
		nullKey(ev.Marketplace),
		nullKey(ev.Admin),
		nullKey(ev.Order),
		nullKey(ev.Seller),
		nullKey(ev.Buyer),
		nullKey(ev.Mint),
		u64(ev.Amount),
		u64(ev.Price),
		int32(ev.FeePercentage),
		u64(ev.TotalPrice),
		u64(ev.Fee),
		u64(ev.SellerProceeds),
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// ListTrades returns the trades settled against order, oldest first
func (h *History) ListTrades(ctx context.Context, order crypto.Pubkey) ([]market.Event, error) {
	query := `
		SELECT tx_id, event_type, marketplace, admin, order_handle, seller, buyer, mint,
			amount::text, price::text, fee_percentage, total_price::text, fee::text,
			seller_proceeds::text, ts
		FROM marketplace_events
		WHERE order_handle = $1 AND event_type = $2
		ORDER BY id ASC
	`

	rows, err := h.pool.Query(ctx, query, order.String(), string(market.EventTrade))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (market.Event, error) {
	var (
		ev                                             market.Event
		typ                                            string
		marketplace, admin, order, seller, buyer, mint *string
		amount, price, total, fee, proceeds            string
		feePercentage                                  int32
	)
	if err := row.Scan(&ev.TxID, &typ, &marketplace, &admin, &order, &seller, &buyer, &mint,
		&amount, &price, &feePercentage, &total, &fee, &proceeds, &ev.Timestamp); err != nil {
		return ev, err
	}
	ev.Type = market.EventType(typ)
	ev.FeePercentage = uint16(feePercentage)

	for _, f := range []struct {
		src *string
		dst *crypto.Pubkey
	}{
		{marketplace, &ev.Marketplace},
		{admin, &ev.Admin},
		{order, &ev.Order},
		{seller, &ev.Seller},
		{buyer, &ev.Buyer},
		{mint, &ev.Mint},
	} {
		if f.src == nil {
			continue
		}
		k, err := crypto.ParsePubkey(*f.src)
		if err != nil {
			return ev, err
		}
		*f.dst = k
	}

	for _, f := range []struct {
		src string
		dst *uint64
	}{
		{amount, &ev.Amount},
		{price, &ev.Price},
		{total, &ev.TotalPrice},
		{fee, &ev.Fee},
		{proceeds, &ev.SellerProceeds},
	} {
		v, err := strconv.ParseUint(f.src, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = v
	}
	return ev, nil
}

// nullKey stores unset identities as NULL
func nullKey(k crypto.Pubkey) *string {
	if k.IsZero() {
		return nil
	}
	s := k.String()
	return &s
}

// u64 formats amounts for NUMERIC(20, 0) columns
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
