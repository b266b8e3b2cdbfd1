// Package chain provides the RPC connector used to read EVM chains.
//
// A Connector holds an ordered list of endpoints with independent health
// state. Calls retry on the current endpoint with exponential backoff, fail
// over to the next endpoint when retries are exhausted, and respect a
// per-endpoint circuit breaker so that persistently failing endpoints are
// skipped without I/O.
package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
)

const (
	maxAttempts      = 3
	retryBaseDelay   = time.Second
	callTimeout      = 10 * time.Second
	failureThreshold = 5
	breakerCoolDown  = 60 * time.Second
	endpointRPS      = 50 // per-endpoint request pacing
)

// Backend is the subset of the ethclient API the connector needs.
// It exists so tests can substitute a fake for a live endpoint.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

type endpoint struct {
	url     string
	client  Backend
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// EndpointHealth is a point-in-time view of one endpoint, for the health and
// metrics surfaces.
type EndpointHealth struct {
	URL   string
	State CircuitState
}

// Connector is a failover RPC client for one chain.
type Connector struct {
	chain   string
	chainID int64
	logger  logging.Logger

	mu        sync.Mutex
	endpoints []*endpoint
	current   int // index of the endpoint that last succeeded

	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewConnector dials every configured endpoint of the chain.
// HTTP endpoints dial lazily, so construction only fails on malformed URLs.
func NewConnector(cfg config.ChainConfig) (*Connector, error) {
	c := &Connector{
		chain:   cfg.Name,
		chainID: cfg.ChainID,
		logger:  logging.New("connector").With("chain", cfg.Name),
		timeout: callTimeout,
		sleep:   sleepCtx,
	}
	for _, url := range cfg.RPCURLs {
		client, err := ethclient.Dial(url)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.endpoints = append(c.endpoints, &endpoint{
			url:     url,
			client:  client,
			breaker: NewCircuitBreaker(failureThreshold, breakerCoolDown),
			limiter: rate.NewLimiter(rate.Limit(endpointRPS), endpointRPS),
		})
	}
	return c, nil
}

// newConnectorWithBackends is the test constructor.
func newConnectorWithBackends(name string, backends []Backend) *Connector {
	c := &Connector{
		chain:   name,
		logger:  logging.New("connector").With("chain", name),
		timeout: callTimeout,
		sleep:   sleepCtx,
	}
	for i, b := range backends {
		c.endpoints = append(c.endpoints, &endpoint{
			url:     "backend-" + string(rune('a'+i)),
			client:  b,
			breaker: NewCircuitBreaker(failureThreshold, breakerCoolDown),
			limiter: rate.NewLimiter(rate.Inf, 1),
		})
	}
	return c
}

// Close releases all endpoint clients.
func (c *Connector) Close() {
	for _, ep := range c.endpoints {
		if ep.client != nil {
			ep.client.Close()
		}
	}
}

// Chain returns the chain name this connector serves.
func (c *Connector) Chain() string { return c.chain }

// ChainID returns the numeric chain ID.
func (c *Connector) ChainID() int64 { return c.chainID }

// Health returns the circuit state of every endpoint in configured order.
func (c *Connector) Health() []EndpointHealth {
	health := make([]EndpointHealth, len(c.endpoints))
	for i, ep := range c.endpoints {
		health[i] = EndpointHealth{URL: ep.url, State: ep.breaker.State()}
	}
	return health
}

// LatestHeight returns the chain tip height.
func (c *Connector) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context, b Backend) error {
		var err error
		height, err = b.BlockNumber(ctx)
		return err
	})
	return height, err
}

// Block fetches the block at the given height with full transactions.
func (c *Connector) Block(ctx context.Context, height uint64) (*types.Block, error) {
	var block *types.Block
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context, b Backend) error {
		var err error
		block, err = b.BlockByNumber(ctx, new(big.Int).SetUint64(height))
		return err
	})
	return block, err
}

// Receipt fetches the receipt for the given transaction hash.
func (c *Connector) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context, b Backend) error {
		var err error
		receipt, err = b.TransactionReceipt(ctx, txHash)
		return err
	})
	return receipt, err
}

// Call performs a read-only eth_call against the given contract.
func (c *Connector) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context, b Backend) error {
		var err error
		out, err = b.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	return out, err
}

// do runs fn against the endpoints, starting from the last healthy one.
// Per endpoint it makes up to maxAttempts attempts with 1s, 2s, 4s backoff;
// then it fails over. Endpoints whose circuit is open are skipped without I/O.
func (c *Connector) do(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	c.mu.Lock()
	start := c.current
	n := len(c.endpoints)
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := c.endpoints[idx]

		for attempt := 0; attempt < maxAttempts; attempt++ {
			if !ep.breaker.Allow() {
				c.logger.Debugw("circuit open, skipping endpoint", "endpoint", ep.url, "op", op)
				break
			}
			if err := ep.limiter.Wait(ctx); err != nil {
				return classify(err)
			}

			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			began := time.Now()
			err := fn(callCtx, ep.client)
			cancel()
			metrics.RPCLatency.WithLabelValues(c.chain, op).Observe(time.Since(began).Seconds())

			if err == nil {
				ep.breaker.Success()
				metrics.EndpointOpen.WithLabelValues(c.chain, ep.url).Set(0)
				c.mu.Lock()
				c.current = idx
				c.mu.Unlock()
				return nil
			}

			err = classify(err)
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				// The endpoint answered; this is not a health failure.
				ep.breaker.Success()
				return err
			}
			if ctx.Err() != nil {
				return err
			}

			ep.breaker.Failure()
			if ep.breaker.State() == CircuitOpen {
				metrics.EndpointOpen.WithLabelValues(c.chain, ep.url).Set(1)
			}
			lastErr = err
			metrics.RPCErrors.WithLabelValues(c.chain, op).Inc()
			c.logger.Warnw("RPC call failed",
				"endpoint", ep.url, "op", op, "attempt", attempt+1, "err", err)

			if attempt < maxAttempts-1 {
				if err := c.sleep(ctx, retryBaseDelay<<attempt); err != nil {
					return classify(err)
				}
			}
		}
	}

	if lastErr != nil {
		return errors.Join(ErrAllEndpointsUnavailable, lastErr)
	}
	return ErrAllEndpointsUnavailable
}

// classify maps transport errors onto the connector's error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	}
	var je gethrpc.Error
	if errors.As(err, &je) {
		return &RPCError{Code: je.ErrorCode(), Message: je.Error()}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
