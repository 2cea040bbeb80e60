package account

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// ComputedTransfer is one automated transfer derived from evaluating an
// AutoTransferRule against current state.
type ComputedTransfer struct {
	Rule   AutoTransferRule
	Amount money.Amount
	// Outbound is true when this account is the sender; false when this
	// account is the target that needs restoring (sender is Rule.TargetAccountID,
	// confusingly the "managing" account in that case — see ComputeAutoTransfers).
	Outbound bool
}

// ComputeAutoTransfers derives the list of automated transfers that should
// fire for the given frequency, per §4.4's AutoTransferCompute. Transfers-out
// (this account is the sender) and transfers-in (this account is restored by
// a managing account) are both represented; the caller partitions them.
func ComputeAutoTransfers(state Account, frequency TransferFrequency) []ComputedTransfer {
	var computed []ComputedTransfer

	for _, rule := range state.AutoTransferRules {
		if rule.Frequency != frequency {
			continue
		}

		switch rule.Kind {
		case RuleZeroBalanceSweep:
			if money.IsPositive(state.Balance) {
				computed = append(computed, ComputedTransfer{Rule: rule, Amount: state.Balance, Outbound: true})
			}

		case RuleTargetBalanceTopUp:
			if state.Balance.LessThan(rule.TargetBalance) {
				shortfall := rule.TargetBalance.Sub(state.Balance)
				computed = append(computed, ComputedTransfer{Rule: rule, Amount: shortfall, Outbound: false})
			}

		case RulePeriodicDistribution:
			if money.IsPositive(rule.Amount) {
				computed = append(computed, ComputedTransfer{Rule: rule, Amount: rule.Amount, Outbound: true})
			}
		}
	}

	return computed
}

// BuildAutoTransferCommands turns the outbound half of ComputeAutoTransfers
// into Debit-style InternalAutoTransfer commands against this account,
// ready to be folded through DecideMany for the atomic persistAll described
// in §4.4.
func BuildAutoTransferCommands(state Account, transfers []ComputedTransfer, now time.Time, correlationSeed uuid.UUID) []Command {
	cmds := make([]Command, 0, len(transfers))
	for _, ct := range transfers {
		if !ct.Outbound {
			continue
		}
		cmds = append(cmds, Command{
			Envelope: Envelope{
				EntityID:      state.AccountID,
				OrgID:         state.OrgID,
				CorrelationID: uuid.New(),
				InitiatedByID: correlationSeed,
				Timestamp:     now,
			},
			Kind: CmdInternalAutoTransfer,
			Data: CommandData{
				Amount:          ct.Amount,
				RecipientID:     ct.Rule.TargetAccountID.String(),
				AutomatedRuleID: ct.Rule.RuleID,
			},
		})
	}
	return cmds
}

// BuildRestoreCommands turns the inbound half of ComputeAutoTransfers into
// one InternalAutoTransfer command per transfer, each addressed to the
// designated managing (sender) account, per §4.4's "for transfers-in, send
// one command per transfer to each sender account".
func BuildRestoreCommands(state Account, transfers []ComputedTransfer, now time.Time) []Command {
	cmds := make([]Command, 0, len(transfers))
	for _, ct := range transfers {
		if ct.Outbound {
			continue
		}
		cmds = append(cmds, Command{
			Envelope: Envelope{
				EntityID:      ct.Rule.TargetAccountID,
				OrgID:         ct.Rule.TargetOrgID,
				CorrelationID: uuid.New(),
				InitiatedByID: state.AccountID,
				Timestamp:     now,
			},
			Kind: CmdInternalAutoTransfer,
			Data: CommandData{
				Amount:          ct.Amount,
				RecipientID:     state.AccountID.String(),
				AutomatedRuleID: ct.Rule.RuleID,
			},
		})
	}
	return cmds
}
