package store

import (
	"context"
	"fmt"

	"github.com/relab/arbmon/config"
)

// SyncChain writes the configured chain definition into the chains table,
// updating the static columns if the row already exists. Sync progress
// columns are left untouched.
func (s *Store) SyncChain(ctx context.Context, cfg config.ChainConfig) error {
	var fallback *string
	if len(cfg.RPCURLs) > 1 {
		fallback = &cfg.RPCURLs[1]
	}
	const q = `
		INSERT INTO chains (
			name, chain_id, rpc_primary, rpc_fallback,
			block_time_seconds, native_token, native_token_usd, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		ON CONFLICT (chain_id) DO UPDATE
		SET name = EXCLUDED.name,
		    rpc_primary = EXCLUDED.rpc_primary,
		    rpc_fallback = EXCLUDED.rpc_fallback,
		    block_time_seconds = EXCLUDED.block_time_seconds,
		    native_token = EXCLUDED.native_token,
		    native_token_usd = EXCLUDED.native_token_usd,
		    status = 'active'`
	return s.withRetry(ctx, "sync_chain", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, q,
			cfg.Name, cfg.ChainID, cfg.RPCURLs[0], fallback,
			cfg.BlockTime.Seconds(), cfg.NativeToken, cfg.NativeTokenUSD)
		return err
	})
}

// UpdateSyncStatus records the monitor's progress for the health surface.
func (s *Store) UpdateSyncStatus(ctx context.Context, chainID int64, lastSynced uint64, blocksBehind int64) error {
	const q = `
		UPDATE chains
		SET last_synced_block = $1, blocks_behind = $2
		WHERE chain_id = $3`
	return s.withRetry(ctx, "update_sync_status", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, q, lastSynced, blocksBehind, chainID)
		return err
	})
}

// ChainStatuses returns the sync-health row of every configured chain.
func (s *Store) ChainStatuses(ctx context.Context) ([]ChainStatus, error) {
	const q = `
		SELECT name, chain_id, last_synced_block, blocks_behind, status,
		       block_time_seconds, native_token, native_token_usd, updated_at
		FROM chains
		ORDER BY chain_id`
	var out []ChainStatus
	err := s.withRetry(ctx, "query_chains", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q)
	})
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	return out, nil
}
