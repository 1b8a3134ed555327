package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"RainyDayLedger/internal/event"
	"RainyDayLedger/internal/ledger"
	"RainyDayLedger/internal/observability"
	"RainyDayLedger/internal/state"
	"RainyDayLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	catalog           *state.PolicyCatalog
	policyManager     *state.PolicyManager
	investmentManager *state.InvestmentManager
	riskPool          *state.RiskPool
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	stableToken token.Token
	custody     common.Address
	assetID     ledger.AssetID

	// During event-log replay the token transfers already happened;
	// only the in-memory state is rebuilt.
	replaying bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte

	// Result mirrors the submitter's result so projections see
	// assigned policy IDs without re-deriving them.
	Result Result
}

// Result carries per-event outputs back to the submitter
type Result struct {
	// PolicyID is the assigned ID for PolicyPurchased events, -1 otherwise
	PolicyID int64
}

// Command is a reply-carrying request submitted by the API server.
// The core loop processes commands and NATS events in one serial stream.
type Command struct {
	Event event.Event
	Reply chan CommandOutcome
}

type CommandOutcome struct {
	Result Result
	Err    error
}

func NewDeterministicCore(
	startSequence int64,
	owner common.Address,
	custody common.Address,
	stableToken token.Token,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)

	assetID, _ := ledger.GetAssetID("USDC")

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		catalog:           state.NewPolicyCatalog(owner),
		policyManager:     state.NewPolicyManager(),
		investmentManager: state.NewInvestmentManager(),
		riskPool:          state.NewRiskPool(),
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		stableToken:       stableToken,
		custody:           custody,
		assetID:           assetID,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline. Rejections consume no
// global sequence and write nothing to the event log.
func (c *DeterministicCore) ProcessEvent(ctx context.Context, evt event.Event) (Result, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()
	result := Result{PolicyID: -1}

	// Step 1: Idempotency check. Two-tier in live mode; replay checks
	// only the LRU because every replayed event exists in Postgres.
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.IsDuplicateLRU(eventType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation per source partition
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
		return result, fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return result, nil
	}

	// Step 3: Event dispatch. All fallible steps (tier lookup, amount
	// checks, token transfers) run inside the handlers before any
	// in-memory mutation, which gives all-or-nothing semantics without
	// a rollback path.
	batch, dispatchResult, err := c.dispatchEvent(ctx, evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, rejectionReason(err)).Inc()
		}
		return result, err
	}
	result = dispatchResult

	// Step 4: Validate and apply the batch. State-only events (price
	// updates, expirations) produce no journals but still need an
	// envelope in the event log.
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}

		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return result, fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Compute state digest and chain hash
	stateDigest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal event payload: %v", err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Source:         evt.Source(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Result:     result,
	}

	c.sequence++

	// Step 6: Post-checks. A violated invariant here means corrupt
	// state was about to commit; halting beats persisting it.
	if err := c.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit outputs.
	// Persistence uses a BLOCKING send (backpressure, no event loss);
	// projections use a NON-BLOCKING send and rebuild from the log if
	// they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Dropped; projection catches up via rebuild
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.PoolBalance.Set(float64(c.balanceTracker.PoolBalance(c.assetID)))
		c.metrics.PoliciesTotal.Set(float64(c.policyManager.Count()))
	}

	return result, nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if src := evt.Source(); src != "" {
		return fmt.Sprintf("source:%s", src)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from an event.
// The core never calls time.Now(); all timestamps are versioned inputs.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.PolicyPurchased:
		return e.Timestamp
	case *event.InvestmentMade:
		return e.Timestamp
	case *event.ClaimPaid:
		return e.Timestamp
	case *event.PolicyExpired:
		return e.Timestamp
	case *event.TierPriceUpdated:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T; deterministic core cannot use wall-clock time", evt))
	}
}

// computeStateDigest creates canonical bytes for the state hash
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically by path
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	// Build digest
	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		// Balance (8 bytes LE)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates the accounting invariants after every
// commit: pool identity, pool non-negative, investor position sum, the
// state/ledger position mirror, and the global zero-sum.
func (c *DeterministicCore) postCheckInvariants() error {
	if err := c.validator.ValidatePoolIdentity(c.assetID); err != nil {
		return err
	}
	if err := c.validator.ValidatePoolNonNegative(c.assetID); err != nil {
		return err
	}
	if err := c.validator.ValidateInvestorPositionSum(c.assetID); err != nil {
		return err
	}

	if got, want := c.investmentManager.Sum(), c.balanceTracker.TotalInvested(c.assetID); got != want {
		return fmt.Errorf("investment register sum %d does not match ledger total %d", got, want)
	}

	if err := c.riskPool.CheckIdentity(
		c.balanceTracker.PoolBalance(c.assetID),
		c.balanceTracker.TotalPremiums(c.assetID),
		c.balanceTracker.TotalInvested(c.assetID),
		c.balanceTracker.TotalPaidOut(c.assetID),
	); err != nil {
		return err
	}

	return c.validator.ValidateGlobalBalance()
}

// rejectionReason maps dispatch errors to a metrics label
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, state.ErrInvalidTier):
		return "invalid_tier"
	case errors.Is(err, state.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, state.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, state.ErrPolicyNotFound):
		return "policy_not_found"
	case errors.Is(err, state.ErrPolicyNotActive):
		return "policy_not_active"
	case errors.Is(err, state.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, state.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, token.ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}

// handlePolicyPurchased issues a policy after pulling the premium.
// Order matters: price lookup, then token pull, then journal, then the
// infallible in-memory issuance.
func (c *DeterministicCore) handlePolicyPurchased(ctx context.Context, evt *event.PolicyPurchased) (*ledger.Batch, int64, error) {
	tier := state.Tier(evt.Tier)
	premium, err := c.catalog.PriceOf(tier)
	if err != nil {
		return nil, -1, err
	}

	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, -1, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	if !c.replaying {
		if err := c.stableToken.TransferFrom(ctx, evt.Buyer, c.custody, premium); err != nil {
			return nil, -1, fmt.Errorf("premium pull failed: %w", err)
		}
	}

	batch, err := c.journalGen.GeneratePremiumCollected(evt, premium, assetID)
	if err != nil {
		return nil, -1, err
	}

	pol := c.policyManager.Issue(evt.Buyer, tier, premium, evt.Timestamp.UnixMicro())

	return batch, pol.ID, nil
}

// handleInvestmentMade pulls investor capital and records the position
func (c *DeterministicCore) handleInvestmentMade(ctx context.Context, evt *event.InvestmentMade) (*ledger.Batch, error) {
	if evt.Amount <= 0 {
		return nil, state.ErrInvalidAmount
	}

	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	if !c.replaying {
		if err := c.stableToken.TransferFrom(ctx, evt.Investor, c.custody, evt.Amount); err != nil {
			return nil, fmt.Errorf("investment pull failed: %w", err)
		}
	}

	batch, err := c.journalGen.GenerateInvestment(evt, assetID)
	if err != nil {
		return nil, err
	}

	if err := c.investmentManager.RecordInvestment(evt.Investor, evt.Amount); err != nil {
		return nil, err
	}

	return batch, nil
}

// handleClaimPaid books an approved payout. The policy must be Active,
// the pool must cover the amount, and the token leaves custody before
// the policy flips to Claimed.
func (c *DeterministicCore) handleClaimPaid(ctx context.Context, evt *event.ClaimPaid) (*ledger.Batch, error) {
	pol, err := c.policyManager.PolicyByID(evt.PolicyID)
	if err != nil {
		return nil, err
	}
	if pol.Status != state.PolicyStatusActive {
		return nil, state.ErrPolicyNotActive
	}
	if evt.Amount <= 0 {
		return nil, state.ErrInvalidAmount
	}

	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	if !c.riskPool.CanCover(c.balanceTracker.PoolBalance(assetID), evt.Amount) {
		return nil, fmt.Errorf("pool balance %d cannot cover payout %d: %w",
			c.balanceTracker.PoolBalance(assetID), evt.Amount, state.ErrInsufficientFunds)
	}

	if !c.replaying {
		if err := c.stableToken.Transfer(ctx, pol.Holder, evt.Amount); err != nil {
			return nil, fmt.Errorf("payout transfer failed: %w", err)
		}
	}

	batch, err := c.journalGen.GenerateClaimPayout(evt, assetID)
	if err != nil {
		return nil, err
	}

	if err := c.policyManager.SetStatus(evt.PolicyID, state.PolicyStatusClaimed, evt.Timestamp.UnixMicro()); err != nil {
		return nil, err
	}

	return batch, nil
}

// handlePolicyExpired transitions a policy to Expired. No monetary
// effect, so the batch carries no journals.
func (c *DeterministicCore) handlePolicyExpired(evt *event.PolicyExpired) (*ledger.Batch, error) {
	if err := c.policyManager.SetStatus(evt.PolicyID, state.PolicyStatusExpired, evt.Timestamp.UnixMicro()); err != nil {
		return nil, err
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro()), nil
}

// handleTierPriceUpdated changes a catalog price. Serializes with
// purchases through the event stream; issued policies keep their
// original premium.
func (c *DeterministicCore) handleTierPriceUpdated(evt *event.TierPriceUpdated) (*ledger.Batch, error) {
	if err := c.catalog.SetPrice(evt.Caller, state.Tier(evt.Tier), evt.NewPrice); err != nil {
		return nil, err
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp.UnixMicro()), nil
}

func (c *DeterministicCore) emptyBatch(eventRef string, timestamp int64) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  c.sequence,
		Timestamp: timestamp,
		Journals:  []ledger.Journal{},
	}
}

func (c *DeterministicCore) dispatchEvent(ctx context.Context, evt event.Event) (*ledger.Batch, Result, error) {
	result := Result{PolicyID: -1}

	switch e := evt.(type) {
	case *event.PolicyPurchased:
		batch, policyID, err := c.handlePolicyPurchased(ctx, e)
		result.PolicyID = policyID
		return batch, result, err
	case *event.InvestmentMade:
		batch, err := c.handleInvestmentMade(ctx, e)
		return batch, result, err
	case *event.ClaimPaid:
		batch, err := c.handleClaimPaid(ctx, e)
		return batch, result, err
	case *event.PolicyExpired:
		batch, err := c.handlePolicyExpired(e)
		return batch, result, err
	case *event.TierPriceUpdated:
		batch, err := c.handleTierPriceUpdated(e)
		return batch, result, err
	default:
		return nil, result, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Read accessors (core goroutine only) ---

// Catalog returns the policy catalog
func (c *DeterministicCore) Catalog() *state.PolicyCatalog {
	return c.catalog
}

// Policies returns the policy register
func (c *DeterministicCore) Policies() *state.PolicyManager {
	return c.policyManager
}

// Investments returns the investment register
func (c *DeterministicCore) Investments() *state.InvestmentManager {
	return c.investmentManager
}

// Balances returns the balance tracker
func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

// NextSourceSequence returns the next expected source sequence for a
// source partition. The API server seeds its counter from this after
// replay so submissions continue the partition without gaps.
func (c *DeterministicCore) NextSourceSequence(source string) int64 {
	return c.sequenceValidator.GetExpectedSequence(fmt.Sprintf("source:%s", source))
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	TierPrices      map[state.Tier]int64
	Policies        []*state.Policy
	NextPolicyID    int64
	Investments     map[common.Address]int64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// BeginReplay puts the core into replay mode: token transfers are
// skipped because every logged event already moved its tokens.
func (c *DeterministicCore) BeginReplay() {
	c.replaying = true
}

// EndReplay returns the core to live processing
func (c *DeterministicCore) EndReplay() {
	c.replaying = false
}

// RestoreFromSnapshot restores the core's in-memory state from a
// snapshot. On warm restart the caller then replays the event log tail.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	// Next sequence to assign
	c.sequence = snap.Sequence + 1
	c.journalGen.SetSequence(snap.Sequence + 1)

	// Restore state hash chain
	c.hasher.SetPrevHash(snap.StateHash)

	// Restore balances
	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	// Restore catalog prices
	for tier, price := range snap.TierPrices {
		c.catalog.RestorePrice(tier, price)
	}

	// Restore policies in ID order so holder indexes keep issuance order
	policies := make([]*state.Policy, len(snap.Policies))
	copy(policies, snap.Policies)
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	for _, pol := range policies {
		c.policyManager.RestorePolicy(pol)
	}
	c.policyManager.RestoreNextID(snap.NextPolicyID)

	// Restore investor positions
	for investor, amount := range snap.Investments {
		c.investmentManager.RestorePosition(investor, amount)
	}

	// Restore sequence validator state
	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the next global sequence number to assign
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip)
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		TierPrices:      c.catalog.Prices(),
		Policies:        c.policyManager.GetAllPolicies(),
		NextPolicyID:    c.policyManager.NextID(),
		Investments:     c.investmentManager.GetAllPositions(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
