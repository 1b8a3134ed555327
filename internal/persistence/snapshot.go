package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"RainyDayLedger/internal/core"
	"RainyDayLedger/internal/ledger"
	"RainyDayLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// A snapshot captures balances, policies, investor positions, tier prices,
// sequence counters, idempotency keys and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the JSON-serializable form of the core's in-memory state.
type SnapshotData struct {
	Sequence        int64             `json:"sequence"`
	StateHash       []byte            `json:"state_hash"`
	Balances        map[string]int64  `json:"balances"` // AccountPath -> balance
	TierPrices      map[uint8]int64   `json:"tier_prices"`
	Policies        []PolicySnapshot  `json:"policies"`
	NextPolicyID    int64             `json:"next_policy_id"`
	Investments     map[string]int64  `json:"investments"` // hex address -> total invested
	SequenceState   map[string]int64  `json:"sequence_state"`
	IdempotencyKeys []string          `json:"idempotency_keys"`
	CreatedAt       time.Time         `json:"created_at"`
}

// PolicySnapshot is a serializable policy.
type PolicySnapshot struct {
	ID          int64  `json:"id"`
	Holder      string `json:"holder"`
	Tier        uint8  `json:"tier"`
	PremiumPaid int64  `json:"premium_paid"`
	Status      int32  `json:"status"`
	IssuedAt    int64  `json:"issued_at"`
	UpdatedAt   int64  `json:"updated_at"`
	Version     int64  `json:"version"`
}

// FromCoreState converts a core snapshot into its serializable form.
func FromCoreState(snap *core.SnapshotState) *SnapshotData {
	data := &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Balances:        make(map[string]int64, len(snap.Balances)),
		TierPrices:      make(map[uint8]int64, len(snap.TierPrices)),
		Policies:        make([]PolicySnapshot, 0, len(snap.Policies)),
		NextPolicyID:    snap.NextPolicyID,
		Investments:     make(map[string]int64, len(snap.Investments)),
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}

	for key, balance := range snap.Balances {
		data.Balances[key.AccountPath()] = balance
	}
	for tier, price := range snap.TierPrices {
		data.TierPrices[uint8(tier)] = price
	}
	for _, pol := range snap.Policies {
		data.Policies = append(data.Policies, PolicySnapshot{
			ID:          pol.ID,
			Holder:      pol.Holder.Hex(),
			Tier:        uint8(pol.Tier),
			PremiumPaid: pol.PremiumPaid,
			Status:      int32(pol.Status),
			IssuedAt:    pol.IssuedAt,
			UpdatedAt:   pol.UpdatedAt,
			Version:     pol.Version,
		})
	}
	for investor, total := range snap.Investments {
		data.Investments[investor.Hex()] = total
	}

	return data
}

// ToCoreState converts a loaded snapshot back into the core's typed form.
func (sd *SnapshotData) ToCoreState() (*core.SnapshotState, error) {
	snap := &core.SnapshotState{
		Sequence:        sd.Sequence,
		Balances:        make(map[ledger.AccountKey]int64, len(sd.Balances)),
		TierPrices:      make(map[state.Tier]int64, len(sd.TierPrices)),
		Policies:        make([]*state.Policy, 0, len(sd.Policies)),
		NextPolicyID:    sd.NextPolicyID,
		Investments:     make(map[common.Address]int64, len(sd.Investments)),
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
	}

	if len(sd.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot state hash has %d bytes, want 32", len(sd.StateHash))
	}
	copy(snap.StateHash[:], sd.StateHash)

	for path, balance := range sd.Balances {
		snap.Balances[ledger.ParseAccountPath(path)] = balance
	}
	for tier, price := range sd.TierPrices {
		snap.TierPrices[state.Tier(tier)] = price
	}
	for _, ps := range sd.Policies {
		snap.Policies = append(snap.Policies, &state.Policy{
			ID:          ps.ID,
			Holder:      common.HexToAddress(ps.Holder),
			Tier:        state.Tier(ps.Tier),
			PremiumPaid: ps.PremiumPaid,
			Status:      state.PolicyStatus(ps.Status),
			IssuedAt:    ps.IssuedAt,
			UpdatedAt:   ps.UpdatedAt,
			Version:     ps.Version,
		})
	}
	for investor, total := range sd.Investments {
		snap.Investments[common.HexToAddress(investor)] = total
	}

	return snap, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and on graceful shutdown.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot.
// Returns nil with no error on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay.
// Used for both warm restart (replay from snapshot) and cold restart.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, source, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Source,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
