// Package claimstore provides durable persistence for signed settlement
// claims and their channels: XRP claims and EVM balance proofs are
// append-only, while XRP channel rows are upserted to hold each channel's
// latest state. Storage is backed by modernc.org/sqlite, a pure-Go
// SQL driver, so the binary stays cgo-free.
package claimstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS xrp_claims (
	channel_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	cumulative_amount INTEGER NOT NULL,
	signature BLOB NOT NULL,
	public_key BLOB NOT NULL,
	PRIMARY KEY (channel_id, created_at)
);

CREATE TABLE IF NOT EXISTS evm_balance_proofs (
	channel_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	nonce INTEGER NOT NULL,
	transferred TEXT NOT NULL,
	locked TEXT NOT NULL,
	locks_root BLOB NOT NULL,
	PRIMARY KEY (channel_id, created_at)
);

CREATE TABLE IF NOT EXISTS xrp_channels (
	channel_id TEXT PRIMARY KEY,
	peer_id TEXT NOT NULL,
	source TEXT NOT NULL,
	destination TEXT NOT NULL,
	amount INTEGER NOT NULL,
	balance INTEGER NOT NULL,
	settle_delay_ns INTEGER NOT NULL,
	source_public_key BLOB NOT NULL,
	cancel_after INTEGER,
	expiration INTEGER,
	status INTEGER NOT NULL,
	opened_at INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_xrp_claims_channel ON xrp_claims(channel_id);
CREATE INDEX IF NOT EXISTS idx_evm_proofs_channel ON evm_balance_proofs(channel_id);
CREATE INDEX IF NOT EXISTS idx_xrp_channels_destination ON xrp_channels(destination);
CREATE INDEX IF NOT EXISTS idx_xrp_channels_status ON xrp_channels(status);
`

// Store is the durable claim store. Writes are serialized through a mutex:
// sqlite permits only one writer at a time regardless of Go-level
// concurrency, and serializing in-process avoids SQLITE_BUSY retries for
// the write-heavy claim-insert path.
type Store struct {
	db       *sql.DB
	writeMu  sync.Mutex
}

// Open creates or attaches to the sqlite database at dsn and ensures the
// schema exists. Migrations are intentionally not versioned via
// golang-migrate: golang-migrate's sqlite driver requires cgo
// (mattn/go-sqlite3), which conflicts with the pure-Go modernc.org/sqlite
// choice. Idempotent CREATE TABLE IF NOT EXISTS is sufficient for this
// schema's complexity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open claim store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer connection avoids lock contention
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create claim store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertXrpClaim appends claim to the store, keyed by (channel_id,
// created_at). It never overwrites a prior entry.
func (s *Store) InsertXrpClaim(ctx context.Context, claim coretypes.StoredClaim) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO xrp_claims (channel_id, created_at, cumulative_amount, signature, public_key)
		 VALUES (?, ?, ?, ?, ?)`,
		string(claim.ChannelID), claim.CreatedAt, claim.CumulativeAmount, claim.Signature[:], claim.PublicKey[:],
	)
	if err != nil {
		return fmt.Errorf("insert xrp claim for channel %s: %w", claim.ChannelID, err)
	}
	return nil
}

// LatestXrpClaimForChannel returns the most recently created claim for
// channelID, or coretypes.ErrEntryNotFound if none exists.
func (s *Store) LatestXrpClaimForChannel(ctx context.Context, channelID coretypes.ChannelID) (coretypes.StoredClaim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT created_at, cumulative_amount, signature, public_key
		 FROM xrp_claims WHERE channel_id = ? ORDER BY created_at DESC LIMIT 1`,
		string(channelID),
	)

	var (
		claim     coretypes.StoredClaim
		sig, pub  []byte
	)
	claim.ChannelID = channelID
	if err := row.Scan(&claim.CreatedAt, &claim.CumulativeAmount, &sig, &pub); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.StoredClaim{}, fmt.Errorf("%w: no claim for channel %s", coretypes.ErrEntryNotFound, channelID)
		}
		return coretypes.StoredClaim{}, fmt.Errorf("query latest xrp claim for channel %s: %w", channelID, err)
	}
	copy(claim.Signature[:], sig)
	copy(claim.PublicKey[:], pub)
	return claim, nil
}

// ListXrpClaimsForChannels returns the latest claim for each of channelIDs,
// skipping channels with no claim on file. Claims do not carry a
// destination address directly, so callers first resolve the channelIDs
// belonging to a destination, e.g. with ListXrpChannelIDsForDestination.
func (s *Store) ListXrpClaimsForChannels(ctx context.Context, channelIDs []coretypes.ChannelID) ([]coretypes.StoredClaim, error) {
	claims := make([]coretypes.StoredClaim, 0, len(channelIDs))
	for _, id := range channelIDs {
		claim, err := s.LatestXrpClaimForChannel(ctx, id)
		if err != nil {
			if errors.Is(err, coretypes.ErrEntryNotFound) {
				continue
			}
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// UpsertXrpChannel persists the lifecycle manager's full view of one XRP
// channel, replacing any prior row for the same channel_id. This is the
// xrp_channels table spec.md §6 calls for: channel state must survive a
// process restart, so the in-memory cache the Manager keeps is always a
// view over this row, never the only copy.
func (s *Store) UpsertXrpChannel(ctx context.Context, meta coretypes.ChannelMetadata, state coretypes.XrpChannelState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var cancelAfter, expiration sql.NullInt64
	if state.CancelAfter != nil {
		cancelAfter = sql.NullInt64{Int64: state.CancelAfter.UnixNano(), Valid: true}
	}
	if state.Expiration != nil {
		expiration = sql.NullInt64{Int64: state.Expiration.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO xrp_channels (
			channel_id, peer_id, source, destination, amount, balance,
			settle_delay_ns, source_public_key, cancel_after, expiration,
			status, opened_at, last_active_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
			peer_id = excluded.peer_id,
			source = excluded.source,
			destination = excluded.destination,
			amount = excluded.amount,
			balance = excluded.balance,
			settle_delay_ns = excluded.settle_delay_ns,
			source_public_key = excluded.source_public_key,
			cancel_after = excluded.cancel_after,
			expiration = excluded.expiration,
			status = excluded.status,
			opened_at = excluded.opened_at,
			last_active_at = excluded.last_active_at`,
		string(state.ChannelID), meta.PeerID, state.Source, state.Destination,
		state.Amount, state.Balance, int64(state.SettleDelay), state.SourcePublicKey[:],
		cancelAfter, expiration, int(state.Status), meta.OpenedAt.UnixNano(), meta.LastActive.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert xrp channel %s: %w", state.ChannelID, err)
	}
	return nil
}

// ListXrpChannelIDsForDestination implements the claim store's
// list_for_destination(address) -> [channel_id] operation (spec.md §4.A):
// every channel ever opened toward destination, regardless of status.
func (s *Store) ListXrpChannelIDsForDestination(ctx context.Context, destination string) ([]coretypes.ChannelID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id FROM xrp_channels WHERE destination = ? ORDER BY opened_at ASC`,
		destination,
	)
	if err != nil {
		return nil, fmt.Errorf("list xrp channels for destination %s: %w", destination, err)
	}
	defer rows.Close()

	var ids []coretypes.ChannelID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan xrp channel id for destination %s: %w", destination, err)
		}
		ids = append(ids, coretypes.ChannelID(id))
	}
	return ids, rows.Err()
}

// LoadOpenXrpChannels rehydrates every channel not yet closed, keyed by
// peer_id, so the lifecycle manager can rebuild its in-memory cache after
// a process restart instead of losing track of open channels.
func (s *Store) LoadOpenXrpChannels(ctx context.Context) ([]coretypes.XrpChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, peer_id, source, destination, amount, balance,
			settle_delay_ns, source_public_key, cancel_after, expiration,
			status, opened_at, last_active_at
		 FROM xrp_channels WHERE status != ?`,
		int(coretypes.XrpChannelClosed),
	)
	if err != nil {
		return nil, fmt.Errorf("load open xrp channels: %w", err)
	}
	defer rows.Close()

	var records []coretypes.XrpChannelRecord
	for rows.Next() {
		var (
			channelID, peerID, source, destination string
			amount, balance                        uint64
			settleDelayNs                          int64
			pubKey                                  []byte
			cancelAfter, expiration                 sql.NullInt64
			status                                   int
			openedAt, lastActiveAt                   int64
		)
		if err := rows.Scan(&channelID, &peerID, &source, &destination, &amount, &balance,
			&settleDelayNs, &pubKey, &cancelAfter, &expiration, &status, &openedAt, &lastActiveAt); err != nil {
			return nil, fmt.Errorf("scan xrp channel row: %w", err)
		}

		state := coretypes.XrpChannelState{
			ChannelID:   coretypes.ChannelID(channelID),
			Source:      source,
			Destination: destination,
			Amount:      amount,
			Balance:     balance,
			SettleDelay: time.Duration(settleDelayNs),
			Status:      coretypes.XrpChannelStatus(status),
		}
		copy(state.SourcePublicKey[:], pubKey)
		if cancelAfter.Valid {
			t := time.Unix(0, cancelAfter.Int64)
			state.CancelAfter = &t
		}
		if expiration.Valid {
			t := time.Unix(0, expiration.Int64)
			state.Expiration = &t
		}

		records = append(records, coretypes.XrpChannelRecord{
			PeerID: peerID,
			Meta: coretypes.ChannelMetadata{
				ChannelID:  coretypes.ChannelID(channelID),
				PeerID:     peerID,
				Token:      coretypes.TokenXRP.String(),
				OpenedAt:   time.Unix(0, openedAt),
				LastActive: time.Unix(0, lastActiveAt),
			},
			State: state,
		})
	}
	return records, rows.Err()
}

// InsertEvmBalanceProof appends proof to the store, keyed by (channel_id,
// created_at). It never overwrites a prior entry.
func (s *Store) InsertEvmBalanceProof(ctx context.Context, proof coretypes.BalanceProof, createdAt int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evm_balance_proofs (channel_id, created_at, nonce, transferred, locked, locks_root)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(proof.ChannelID), createdAt, proof.Nonce, proof.Transferred.String(), proof.Locked.String(), proof.LocksRoot[:],
	)
	if err != nil {
		return fmt.Errorf("insert evm balance proof for channel %s: %w", proof.ChannelID, err)
	}
	return nil
}

// LatestEvmBalanceProofForChannel returns the most recently created balance
// proof for channelID, or coretypes.ErrEntryNotFound if none exists.
func (s *Store) LatestEvmBalanceProofForChannel(ctx context.Context, channelID coretypes.ChannelID) (coretypes.BalanceProof, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT nonce, transferred, locked, locks_root
		 FROM evm_balance_proofs WHERE channel_id = ? ORDER BY created_at DESC LIMIT 1`,
		string(channelID),
	)

	var (
		proof                   coretypes.BalanceProof
		transferred, locked     string
		locksRoot               []byte
	)
	proof.ChannelID = channelID
	if err := row.Scan(&proof.Nonce, &transferred, &locked, &locksRoot); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.BalanceProof{}, fmt.Errorf("%w: no balance proof for channel %s", coretypes.ErrEntryNotFound, channelID)
		}
		return coretypes.BalanceProof{}, fmt.Errorf("query latest balance proof for channel %s: %w", channelID, err)
	}

	var ok bool
	proof.Transferred, ok = new(big.Int).SetString(transferred, 10)
	if !ok {
		return coretypes.BalanceProof{}, fmt.Errorf("corrupt transferred amount stored for channel %s", channelID)
	}
	proof.Locked, ok = new(big.Int).SetString(locked, 10)
	if !ok {
		return coretypes.BalanceProof{}, fmt.Errorf("corrupt locked amount stored for channel %s", channelID)
	}
	copy(proof.LocksRoot[:], locksRoot)
	return proof, nil
}
