// Package gateway abstracts the value-transfer backend the escrow layer
// settles through.
package gateway

import (
	"context"
	"errors"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
)

// ErrDeclined is returned when the backend executed but refused the
// transfer, for example an insufficient balance or a missing allowance.
var ErrDeclined = errors.New("transfer declined")

// TransferGateway moves value between accounts. Transfer pays out of the
// escrow vault; TransferFrom pulls from a payer into an arbitrary account.
// Implementations return ErrDeclined for a refusal and other errors for
// backend failures.
type TransferGateway interface {
	Transfer(ctx context.Context, kind asset.Kind, to string, amount int64) error
	TransferFrom(ctx context.Context, kind asset.Kind, from, to string, amount int64) error
}

// Nop accepts every transfer without moving anything. Used for local
// development when no chain backend is configured.
type Nop struct{}

var _ TransferGateway = Nop{}

func (Nop) Transfer(context.Context, asset.Kind, string, int64) error {
	return nil
}

func (Nop) TransferFrom(context.Context, asset.Kind, string, string, int64) error {
	return nil
}
