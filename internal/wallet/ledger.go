// Package wallet implements the double-entry wallet ledger (C7): every
// balance movement a trade causes is appended as a posted ledger.Transaction
// and folded into the user's cached balance/reserved fields in the same
// call. Callers invoke every method inside the enclosing trade transition's
// transaction (storage.Store.WithTx) so the row lock taken by
// GetUserForUpdate is held until the whole transition commits.
//
// Adapted from services/gasbank/marble/topup.go's threshold-check-then-
// transfer pattern, generalized from gas top-ups to escrow holds/captures.
package wallet

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/ledger"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/platform/idgen"
	"github.com/skinvault/escrow/internal/storage"
)

// Ledger is the wallet's entry point. It wraps the user and ledger stores;
// it never opens its own transaction, it relies on the caller's ctx
// carrying one (spec §4.3 step 4: wallet movement and state write commit
// together).
type Ledger struct {
	store storage.Store
}

// New creates a Ledger over store.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve places a hold on amount of steamID's available balance for
// tradeUUID (buyer pays into escrow). Fails with a ValidationError if
// available balance is insufficient.
func (l *Ledger) Reserve(ctx context.Context, steamID, tradeUUID string, amount money.Decimal) error {
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	if u.Available().LessThan(amount) {
		return apierrors.NewValidation("amount", "insufficient available balance")
	}

	u.Reserved = u.Reserved.Add(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, tradeUUID, steamID, ledger.KindDebitHold, amount.Neg())
}

// ReleaseHold reverses a Reserve without ever capturing it (cancellation
// before the funds moved into escrow).
func (l *Ledger) ReleaseHold(ctx context.Context, steamID, tradeUUID string, amount money.Decimal) error {
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	u.Reserved = u.Reserved.Sub(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, tradeUUID, steamID, ledger.KindReleaseHold, amount)
}

// Pay is the buyer-facing debit behind `POST /trades/:uuid/pay`: it places
// the hold and immediately captures it into the platform escrow
// pseudo-account in one call, producing a debit_hold entry followed by a
// capture entry (spec §4.3's `payment_received` = "funds moved from
// reserved to escrow").
func (l *Ledger) Pay(ctx context.Context, steamID, tradeUUID string, amount money.Decimal) error {
	if err := l.Reserve(ctx, steamID, tradeUUID, amount); err != nil {
		return err
	}
	return l.Capture(ctx, steamID, tradeUUID, amount)
}

// Capture moves a held amount out of the buyer's reserved+balance and into
// the platform escrow pseudo-account, marking the hold consumed rather than
// released. Pay calls it right after Reserve, at payment time.
func (l *Ledger) Capture(ctx context.Context, steamID, tradeUUID string, amount money.Decimal) error {
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	u.Reserved = u.Reserved.Sub(amount)
	u.Balance = u.Balance.Sub(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, tradeUUID, steamID, ledger.KindCapture, amount.Neg())
}

// Payout credits the seller their payout share and records the platform's
// fee cut as a separate posted entry against the escrow pseudo-account, so
// the ledger-conservation invariant (spec §8 property 1) holds across both
// legs of a single trade's capture.
func (l *Ledger) Payout(ctx context.Context, steamID, tradeUUID string, payout, fee money.Decimal) error {
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	u.Balance = u.Balance.Add(payout)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	if err := l.append(ctx, tradeUUID, steamID, ledger.KindPayout, payout); err != nil {
		return err
	}
	if money.IsPositive(fee) {
		return l.append(ctx, tradeUUID, ledger.EscrowAccountID, ledger.KindFee, fee)
	}
	return nil
}

// Refund returns captured funds to the buyer (dispute resolution or a
// seller-side failure after capture).
func (l *Ledger) Refund(ctx context.Context, steamID, tradeUUID string, amount money.Decimal) error {
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	u.Balance = u.Balance.Add(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, tradeUUID, steamID, ledger.KindRefund, amount)
}

// Deposit credits steamID's balance from an external payment provider
// (spec §6 POST /wallet/deposit). It carries no trade UUID since it is
// not part of any escrow transition.
func (l *Ledger) Deposit(ctx context.Context, steamID string, amount money.Decimal) error {
	if !money.IsPositive(amount) {
		return apierrors.NewValidation("amount", "must be positive")
	}
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	u.Balance = u.Balance.Add(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, "", steamID, ledger.KindAdjust, amount)
}

// Withdraw debits steamID's available (non-reserved) balance out to an
// external payment provider (spec §6 POST /wallet/withdraw).
func (l *Ledger) Withdraw(ctx context.Context, steamID string, amount money.Decimal) error {
	if !money.IsPositive(amount) {
		return apierrors.NewValidation("amount", "must be positive")
	}
	u, err := l.store.GetUserForUpdate(ctx, steamID)
	if err != nil {
		return err
	}
	if u.Available().LessThan(amount) {
		return apierrors.NewValidation("amount", "insufficient available balance")
	}
	u.Balance = u.Balance.Sub(amount)
	if err := l.checkInvariants(u); err != nil {
		return err
	}
	if _, err := l.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	return l.append(ctx, "", steamID, ledger.KindAdjust, amount.Neg())
}

// checkInvariants enforces spec §8 property 1's per-user invariants:
// balance never negative, reserved never exceeds balance. A violation is
// an internal inconsistency, not a user-facing validation failure — it
// means an earlier step in the transition protocol already misbehaved.
func (l *Ledger) checkInvariants(u user.User) error {
	if u.Balance.IsNegative() {
		return apierrors.NewInternal(fmt.Sprintf("user %s balance went negative: %s", u.SteamID, u.Balance))
	}
	if u.Reserved.IsNegative() {
		return apierrors.NewInternal(fmt.Sprintf("user %s reserved went negative: %s", u.SteamID, u.Reserved))
	}
	if u.Reserved.GreaterThan(u.Balance) {
		return apierrors.NewInternal(fmt.Sprintf("user %s reserved %s exceeds balance %s", u.SteamID, u.Reserved, u.Balance))
	}
	return nil
}

func (l *Ledger) append(ctx context.Context, tradeUUID, subjectID string, kind ledger.Kind, amount money.Decimal) error {
	_, err := l.store.AppendTransaction(ctx, ledger.Transaction{
		UUID:          idgen.NewUUID(),
		TradeUUID:     tradeUUID,
		SubjectUserID: subjectID,
		Kind:          kind,
		Amount:        amount,
		Currency:      "USD",
		Status:        statusFor(kind),
	})
	if err != nil {
		return fmt.Errorf("append ledger transaction: %w", err)
	}
	return nil
}

// statusFor reports a kind's posting state. A hold only reserves funds
// against the user's own balance, already reflected in User.Reserved; it
// never moves money and so never posts (spec §8 property 1:
// SUM(posted) = balance). Every other kind is a real movement and posts
// immediately since wallet.Ledger methods run inside the caller's single
// transition transaction.
func statusFor(kind ledger.Kind) ledger.Status {
	switch kind {
	case ledger.KindDebitHold, ledger.KindReleaseHold:
		return ledger.StatusPending
	default:
		return ledger.StatusPosted
	}
}
