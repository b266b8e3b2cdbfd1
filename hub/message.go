// Package hub fans detected opportunities and transactions out to websocket
// subscribers with per-subscription filters and drop-oldest backpressure.
package hub

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/store"
)

// Channel names subscribers can attach to.
const (
	ChannelOpportunities = "opportunities"
	ChannelTransactions  = "transactions"
)

// Message types exchanged with subscribers.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"

	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeOpportunity  = "opportunity"
	TypeTransaction  = "transaction"
	TypeHeartbeat    = "heartbeat"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type         string   `json:"type"`
	Channel      string   `json:"channel,omitempty"`
	Filters      *Filters `json:"filters,omitempty"`
	ConnectionID string   `json:"connection_id,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
	Data         any      `json:"data,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// Filters narrows a subscription. Unset fields match everything; min_swaps
// is only meaningful on the transactions channel.
type Filters struct {
	ChainID   *int64           `json:"chain_id,omitempty"`
	MinProfit *decimal.Decimal `json:"min_profit,omitempty"`
	MaxProfit *decimal.Decimal `json:"max_profit,omitempty"`
	MinSwaps  *int             `json:"min_swaps,omitempty"`
}

// event is a routed payload plus the fields filters match against.
type event struct {
	channel string
	chainID int64
	profit  decimal.NullDecimal
	swaps   int
	payload any
}

func opportunityEvent(opp *store.Opportunity) event {
	return event{
		channel: ChannelOpportunities,
		chainID: opp.ChainID,
		profit:  decimal.NewNullDecimal(opp.ProfitUSD),
		payload: opp,
	}
}

func transactionEvent(tx *store.ArbitrageTransaction) event {
	return event{
		channel: ChannelTransactions,
		chainID: tx.ChainID,
		profit:  tx.ProfitNetUSD,
		swaps:   tx.SwapCount,
		payload: tx,
	}
}

// matches applies the filter to an event. A null profit passes the profit
// bounds: an unpriced transaction is not filtered out by value rules.
func (f Filters) matches(ev event) bool {
	if f.ChainID != nil && ev.chainID != *f.ChainID {
		return false
	}
	if ev.profit.Valid {
		if f.MinProfit != nil && ev.profit.Decimal.LessThan(*f.MinProfit) {
			return false
		}
		if f.MaxProfit != nil && ev.profit.Decimal.GreaterThan(*f.MaxProfit) {
			return false
		}
	}
	if f.MinSwaps != nil && ev.swaps < *f.MinSwaps {
		return false
	}
	return true
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
