package token_test

import (
	"context"
	"errors"
	"testing"

	"RainyDayLedger/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestMemoryToken_MintAndBalance(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	if err := tok.Mint(alice, 100_000_000); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	bal, err := tok.BalanceOf(ctx, alice)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if bal != 100_000_000 {
		t.Errorf("balance: got %d, want 100_000_000", bal)
	}
}

func TestMemoryToken_TransferFrom(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	tok.Mint(alice, 100_000_000)
	tok.Approve(alice, custody, 50_000_000)

	if err := tok.TransferFrom(ctx, alice, custody, 50_000_000); err != nil {
		t.Fatalf("TransferFrom failed: %v", err)
	}

	aliceBal, _ := tok.BalanceOf(ctx, alice)
	custodyBal, _ := tok.BalanceOf(ctx, custody)
	if aliceBal != 50_000_000 {
		t.Errorf("alice balance: got %d, want 50_000_000", aliceBal)
	}
	if custodyBal != 50_000_000 {
		t.Errorf("custody balance: got %d, want 50_000_000", custodyBal)
	}

	// Allowance consumed
	remaining, _ := tok.Allowance(ctx, alice, custody)
	if remaining != 0 {
		t.Errorf("allowance: got %d, want 0", remaining)
	}
}

func TestMemoryToken_TransferFrom_InsufficientAllowance(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	tok.Mint(alice, 100_000_000)
	tok.Approve(alice, custody, 10_000_000)

	err := tok.TransferFrom(ctx, alice, custody, 50_000_000)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}

	// No state change
	bal, _ := tok.BalanceOf(ctx, alice)
	if bal != 100_000_000 {
		t.Errorf("balance should be unchanged, got %d", bal)
	}
}

func TestMemoryToken_TransferFrom_InsufficientBalance(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	tok.Mint(alice, 10_000_000)
	tok.Approve(alice, custody, 50_000_000)

	err := tok.TransferFrom(ctx, alice, custody, 50_000_000)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMemoryToken_Transfer_FromCustody(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	tok.Mint(custody, 100_000_000)

	if err := tok.Transfer(ctx, bob, 40_000_000); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	bobBal, _ := tok.BalanceOf(ctx, bob)
	if bobBal != 40_000_000 {
		t.Errorf("bob balance: got %d, want 40_000_000", bobBal)
	}
}

func TestMemoryToken_Transfer_InsufficientCustody(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	err := tok.Transfer(ctx, bob, 1)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMemoryToken_NonPositiveAmounts(t *testing.T) {
	tok := token.NewMemoryToken(custody)
	ctx := context.Background()

	if err := tok.Mint(alice, 0); err == nil {
		t.Error("zero mint should fail")
	}
	if err := tok.TransferFrom(ctx, alice, custody, 0); err == nil {
		t.Error("zero transfer-from should fail")
	}
	if err := tok.Transfer(ctx, bob, -1); err == nil {
		t.Error("negative transfer should fail")
	}
}
