package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Options tunes request pacing and retries.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// Client wraps go-ethereum RPC with rate limiting and retries.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter
	opts      Options

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientFromRPC(rpcClient, opts), nil
}

// NewClientFromRPC wraps an existing RPC client.
func NewClientFromRPC(rpcClient *rpc.Client, opts Options) *Client {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   rate.NewLimiter(limit, opts.Burst),
		opts:      opts,
		tsCache:   make(map[uint64]uint64),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) do(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBaseDelay, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return n, err
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	err := c.do(ctx, func(ctx context.Context) error {
		header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

// FilterLogs fetches logs in [from, to] emitted by addresses, optionally restricted to topic0 values.
func (c *Client) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	var logs []types.Log
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = c.ethClient.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}
