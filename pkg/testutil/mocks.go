// Package testutil provides transfer gateway doubles for service and
// handler tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
)

// MockToken is an in-process token ledger implementing the transfer
// gateway. Balances and allowances are tracked per asset kind so tests
// can assert exactly where value ended up.
type MockToken struct {
	mu         sync.Mutex
	balances   map[string]map[string]int64 // kind -> account -> balance
	allowances map[string]map[string]int64 // kind -> payer -> allowance

	// DeclineTransfer and DeclineTransferFrom force the next matching
	// call to report a refusal without moving value.
	DeclineTransfer     bool
	DeclineTransferFrom bool

	transfers int
}

var _ gateway.TransferGateway = (*MockToken)(nil)

// NewMockToken creates an empty ledger.
func NewMockToken() *MockToken {
	return &MockToken{
		balances:   make(map[string]map[string]int64),
		allowances: make(map[string]map[string]int64),
	}
}

// Mint credits an account with freshly created balance.
func (m *MockToken) Mint(kind asset.Kind, account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kindBalances(kind)[account] += amount
}

// Approve grants an allowance a TransferFrom may spend from the payer.
func (m *MockToken) Approve(kind asset.Kind, payer string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kindAllowances(kind)[payer] = amount
}

// Balance reads an account's balance for the asset kind.
func (m *MockToken) Balance(kind asset.Kind, account string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kindBalances(kind)[account]
}

// Transfers counts the successful value movements.
func (m *MockToken) Transfers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers
}

func (m *MockToken) Transfer(_ context.Context, kind asset.Kind, to string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeclineTransfer {
		return gateway.ErrDeclined
	}
	m.kindBalances(kind)[to] += amount
	m.transfers++
	return nil
}

func (m *MockToken) TransferFrom(_ context.Context, kind asset.Kind, from, to string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeclineTransferFrom {
		return gateway.ErrDeclined
	}
	allowances := m.kindAllowances(kind)
	if allowances[from] < amount {
		return gateway.ErrDeclined
	}
	allowances[from] -= amount

	balances := m.kindBalances(kind)
	balances[from] -= amount
	balances[to] += amount
	m.transfers++
	return nil
}

func (m *MockToken) kindBalances(kind asset.Kind) map[string]int64 {
	key := kind.String()
	if m.balances[key] == nil {
		m.balances[key] = make(map[string]int64)
	}
	return m.balances[key]
}

func (m *MockToken) kindAllowances(kind asset.Kind) map[string]int64 {
	key := kind.String()
	if m.allowances[key] == nil {
		m.allowances[key] = make(map[string]int64)
	}
	return m.allowances[key]
}

// FailingGateway errors on every call, simulating an unreachable backend.
type FailingGateway struct{}

var _ gateway.TransferGateway = FailingGateway{}

func (FailingGateway) Transfer(context.Context, asset.Kind, string, int64) error {
	return fmt.Errorf("gateway unavailable")
}

func (FailingGateway) TransferFrom(context.Context, asset.Kind, string, string, int64) error {
	return fmt.Errorf("gateway unavailable")
}
