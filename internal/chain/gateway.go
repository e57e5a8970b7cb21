package chain

import (
	"context"
	"fmt"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
)

// GasTokenHash is the native GAS contract on Neo N3. Native-currency
// transfers route through it like any other NEP-17 token.
const GasTokenHash = "0xd2a4cff31913016155e38e474a2c06d08be276cf"

// Gateway drives NEP-17 transfers through a Neo node. Transfer moves funds
// out of the configured vault account; TransferFrom pulls from a payer who
// has granted the vault an allowance.
type Gateway struct {
	client *Client
	vault  string
}

var _ gateway.TransferGateway = (*Gateway)(nil)

// NewGateway creates a chain-backed transfer gateway. vault is the escrow
// account whose witness signs outgoing transfers.
func NewGateway(client *Client, vault string) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if vault == "" {
		return nil, fmt.Errorf("vault account required")
	}
	return &Gateway{client: client, vault: vault}, nil
}

// Transfer pushes amount from the vault to the recipient.
func (g *Gateway) Transfer(ctx context.Context, kind asset.Kind, to string, amount int64) error {
	return g.invokeTransfer(ctx, contractFor(kind), "transfer", []ContractParam{
		NewHash160Param(g.vault),
		NewHash160Param(to),
		NewIntegerParam(amount),
		NewAnyParam(),
	})
}

// TransferFrom pulls amount from the payer into the destination account.
func (g *Gateway) TransferFrom(ctx context.Context, kind asset.Kind, from, to string, amount int64) error {
	return g.invokeTransfer(ctx, contractFor(kind), "transferFrom", []ContractParam{
		NewHash160Param(g.vault),
		NewHash160Param(from),
		NewHash160Param(to),
		NewIntegerParam(amount),
		NewAnyParam(),
	})
}

func (g *Gateway) invokeTransfer(ctx context.Context, contractHash, method string, params []ContractParam) error {
	result, err := g.client.InvokeFunction(ctx, contractHash, method, params, []Signer{
		{Account: g.vault, Scopes: "CalledByEntry"},
	})
	if err != nil {
		return err
	}
	if result.State != "HALT" {
		return fmt.Errorf("execution failed: %s", result.Exception)
	}
	if len(result.Stack) == 0 {
		return fmt.Errorf("no result")
	}
	ok, err := ParseBoolean(result.Stack[0])
	if err != nil {
		return err
	}
	if !ok {
		// The token reported failure without faulting.
		return gateway.ErrDeclined
	}
	return nil
}

func contractFor(kind asset.Kind) string {
	if kind.IsNative() {
		return GasTokenHash
	}
	return kind.Hash
}
