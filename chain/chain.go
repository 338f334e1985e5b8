package chain

import (
	"context"
	"errors"
	"math/big"
	"net/url"

	avxClient "github.com/ava-labs/coreth/ethclient"
	"github.com/ava-labs/coreth/interfaces"
	"github.com/ethereum/go-ethereum"
	ethClient "github.com/ethereum/go-ethereum/ethclient"

	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainType is an internal type used to differentiate between different
// types of EVM-compatible chains.
type ChainType int

const (
	ChainTypeAvax ChainType = iota + 1 // Add 1 to skip 0 - avoids the zero value defaulting to Avax
	ChainTypeEth
)

// Client wraps the two supported node client flavours behind the small
// surface the indexer needs: chain id, headers and log filtering. Results
// are normalized to go-ethereum types.
type Client struct {
	chain ChainType
	eth   *ethClient.Client
	avx   avxClient.Client
}

func DialRPCNode(nodeURL *url.URL, chainType ChainType) (*Client, error) {
	c := &Client{chain: chainType}
	var err error

	switch c.chain {
	case ChainTypeAvax:
		c.avx, err = avxClient.Dial(nodeURL.String())
	case ChainTypeEth:
		c.eth, err = ethClient.Dial(nodeURL.String())
	default:
		return nil, errors.New("invalid chain")
	}

	return c, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	switch c.chain {
	case ChainTypeAvax:
		return c.avx.ChainID(ctx)
	case ChainTypeEth:
		return c.eth.ChainID(ctx)
	default:
		return nil, errors.New("invalid chain")
	}
}

// HeaderByNumber returns the block number and timestamp of the given block,
// or of the latest block if number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (uint64, uint64, error) {
	switch c.chain {
	case ChainTypeAvax:
		h, err := c.avx.HeaderByNumber(ctx, number)
		if err != nil {
			return 0, 0, err
		}
		return h.Number.Uint64(), h.Time, nil
	case ChainTypeEth:
		h, err := c.eth.HeaderByNumber(ctx, number)
		if err != nil {
			return 0, 0, err
		}
		return h.Number.Uint64(), h.Time, nil
	default:
		return 0, 0, errors.New("invalid chain")
	}
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error) {
	switch c.chain {
	case ChainTypeAvax:
		avxLogs, err := c.avx.FilterLogs(ctx, interfaces.FilterQuery(q))
		if err != nil {
			return nil, err
		}
		logs := make([]ethTypes.Log, len(avxLogs))
		for i, l := range avxLogs {
			logs[i] = ethTypes.Log(l)
		}
		return logs, nil
	case ChainTypeEth:
		return c.eth.FilterLogs(ctx, q)
	default:
		return nil, errors.New("invalid chain")
	}
}
