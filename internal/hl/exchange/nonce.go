package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type NonceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type NonceState struct {
	Key       string
	Last      uint64
	Persisted uint64
}

// nonceClock issues strictly increasing millisecond nonces. Once attached to
// a store it writes the high-water mark after every issue.
type nonceClock struct {
	last atomic.Uint64

	mu        sync.Mutex
	store     NonceStore
	key       string
	persisted uint64
	warned    bool
	log       *zap.Logger
}

func (n *nonceClock) attach(ctx context.Context, store NonceStore, key string, log *zap.Logger) error {
	seed := uint64(time.Now().UnixMilli())
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		stored, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid stored nonce %q: %w", raw, err)
		}
		seed = max(seed, stored)
	}
	seed = max(seed, n.last.Load())
	if log == nil {
		log = zap.NewNop()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.store = store
	n.key = key
	n.persisted = seed
	n.log = log
	n.last.Store(seed)
	return nil
}

func (n *nonceClock) state() (NonceState, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.store == nil {
		return NonceState{}, false
	}
	return NonceState{Key: n.key, Last: n.last.Load(), Persisted: n.persisted}, true
}

func (n *nonceClock) next() uint64 {
	now := uint64(time.Now().UnixMilli())
	for {
		prev := n.last.Load()
		nonce := max(now, prev+1)
		if n.last.CompareAndSwap(prev, nonce) {
			n.persist(nonce)
			return nonce
		}
	}
}

func (n *nonceClock) persist(nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.store == nil || nonce <= n.persisted {
		return
	}
	if err := n.store.Set(context.Background(), n.key, strconv.FormatUint(nonce, 10)); err != nil {
		if !n.warned {
			n.warned = true
			n.log.Warn("nonce persistence failed", zap.String("nonce_key", n.key), zap.Error(err))
		}
		return
	}
	n.persisted = nonce
	n.warned = false
}

func nonceKey(baseURL string, signer common.Address, vault *common.Address) string {
	vaultHex := "none"
	if vault != nil {
		vaultHex = strings.ToLower(vault.Hex())
	}
	return fmt.Sprintf("exchange:nonce:%s:%s:%s",
		strings.ToLower(strings.TrimSpace(baseURL)), strings.ToLower(signer.Hex()), vaultHex)
}
