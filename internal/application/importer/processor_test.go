package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetnz/envelope-sync-backend/internal/domain/match"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

func newTestProcessor(t *testing.T) (*Processor, *storage.MemoryLedger) {
	t.Helper()
	ledger := storage.NewMemoryLedger()
	return NewProcessor(ledger, match.NewDetector(match.DefaultConfig()), nil), ledger
}

func seedAccount(t *testing.T, ledger *storage.MemoryLedger, balance string) *storage.Account {
	t.Helper()
	acct, err := ledger.CreateAccount(context.Background(), &storage.Account{
		UserID: 1, Name: "Everyday", Balance: balance,
	})
	require.NoError(t, err)
	return acct
}

func seedEnvelope(t *testing.T, ledger *storage.MemoryLedger, name, balance string) *storage.Envelope {
	t.Helper()
	env, err := ledger.CreateEnvelope(context.Background(), &storage.Envelope{
		UserID: 1, Name: name, CurrentBalance: balance, IsActive: true,
	})
	require.NoError(t, err)
	return env
}

func TestProcessor_RejectsInvalidRecords(t *testing.T) {
	processor, _ := newTestProcessor(t)
	ctx := context.Background()

	t.Run("unparseable amount", func(t *testing.T) {
		_, err := processor.Process(ctx, Record{Amount: "abc", Date: "2026-03-10", Merchant: "Countdown"}, 1, 1)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("unparseable date", func(t *testing.T) {
		_, err := processor.Process(ctx, Record{Amount: "-45.00", Date: "10/03/2026", Merchant: "Countdown"}, 1, 1)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestProcessor_MergesExactMatch(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "0.00")
	env := seedEnvelope(t, ledger, "Groceries", "0.00")

	// A manual entry awaiting its bank counterpart, pre-allocated to an
	// envelope but not yet approved.
	fp := match.Fingerprint("-45.00", "2026-03-10", "Countdown")
	manual, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: acct.ID, Merchant: "Countdown",
		Amount: "-45.00", Date: "2026-03-10",
		SourceType: storage.SourceManual, DuplicateStatus: storage.DuplicateNone,
		BankHash: &fp,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.CreateSplit(ctx, manual.ID, env.ID, "-45.00"))

	outcome, err := processor.Process(ctx, Record{
		Amount: "-45.00", Date: "2026-03-10",
		Merchant:          "EFTPOS COUNTDOWN AUCKLAND 123",
		BankTransactionID: "bank-tx-1",
	}, 1, acct.ID)
	require.NoError(t, err)

	assert.Equal(t, ActionMerged, outcome.Action)
	require.NotNil(t, outcome.MergedWith)
	assert.Equal(t, manual.ID, outcome.MergedWith.ID)

	// The manual entry keeps its identity and gains the bank metadata.
	merged := outcome.Transaction
	assert.Equal(t, manual.ID, merged.ID)
	assert.Equal(t, storage.SourceManual, merged.SourceType)
	assert.Equal(t, storage.DuplicateConfirmed, merged.DuplicateStatus)
	require.NotNil(t, merged.BankTransactionID)
	assert.Equal(t, "bank-tx-1", *merged.BankTransactionID)
	assert.True(t, merged.IsApproved)

	// Approval propagated the balances.
	gotEnv, err := ledger.Envelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "-45.00", gotEnv.CurrentBalance)

	gotAcct, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "-45.00", gotAcct.Balance)
}

func TestProcessor_MergeIsIdempotent(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "0.00")
	env := seedEnvelope(t, ledger, "Groceries", "0.00")

	fp := match.Fingerprint("-45.00", "2026-03-10", "Countdown")
	manual, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: acct.ID, Merchant: "Countdown",
		Amount: "-45.00", Date: "2026-03-10",
		SourceType: storage.SourceManual, BankHash: &fp,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.CreateSplit(ctx, manual.ID, env.ID, "-45.00"))

	record := Record{
		Amount: "-45.00", Date: "2026-03-10",
		Merchant: "EFTPOS COUNTDOWN AUCKLAND 123", BankTransactionID: "bank-tx-1",
	}

	// The feed redelivers the same record; balances must only move once.
	for i := 0; i < 2; i++ {
		outcome, err := processor.Process(ctx, record, 1, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, ActionMerged, outcome.Action)
	}

	gotEnv, err := ledger.Envelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "-45.00", gotEnv.CurrentBalance)

	gotAcct, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "-45.00", gotAcct.Balance)
}

func TestProcessor_MergeWithApprovedEntryLeavesBalances(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "100.00")
	env := seedEnvelope(t, ledger, "Groceries", "55.00")

	// Already approved: its balance effects were applied at approval time.
	fp := match.Fingerprint("-45.00", "2026-03-10", "Countdown")
	manual, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: acct.ID, Merchant: "Countdown",
		Amount: "-45.00", Date: "2026-03-10", IsApproved: true,
		SourceType: storage.SourceManual, BankHash: &fp,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.CreateSplit(ctx, manual.ID, env.ID, "-45.00"))

	outcome, err := processor.Process(ctx, Record{
		Amount: "-45.00", Date: "2026-03-10",
		Merchant: "Countdown", BankTransactionID: "bank-tx-1",
	}, 1, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, outcome.Action)

	gotEnv, err := ledger.Envelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "55.00", gotEnv.CurrentBalance)

	gotAcct, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", gotAcct.Balance)
}

func TestProcessor_FlagsHighConfidenceNearMatch(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "0.00")

	// Same merchant and day, one cent off: high confidence but no
	// fingerprint hit, so it goes to review instead of merging.
	manual, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: acct.ID, Merchant: "Four Square",
		Amount: "-20.00", Date: "2026-03-10", IsApproved: true,
		SourceType: storage.SourceManual,
	})
	require.NoError(t, err)

	outcome, err := processor.Process(ctx, Record{
		Amount: "-20.01", Date: "2026-03-10",
		Merchant:          "FOUR SQUARE WELLINGTON 123",
		BankTransactionID: "bank-tx-2",
	}, 1, acct.ID)
	require.NoError(t, err)

	assert.Equal(t, ActionFlagged, outcome.Action)
	flagged := outcome.Transaction
	assert.Equal(t, storage.SourceBankSync, flagged.SourceType)
	assert.Equal(t, storage.DuplicatePotential, flagged.DuplicateStatus)
	assert.False(t, flagged.IsApproved)
	require.NotNil(t, flagged.DuplicateOfID)
	assert.Equal(t, manual.ID, *flagged.DuplicateOfID)
	require.NotNil(t, flagged.BankHash)

	// The flagged row is held: no balance movement.
	gotAcct, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", gotAcct.Balance)
}

func TestProcessor_CreatesNewTransaction(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "0.00")

	outcome, err := processor.Process(ctx, Record{
		Amount: "-12.50", Date: "2026-03-10",
		Merchant: "Night n Day", Description: "snacks",
		BankTransactionID: "bank-tx-3",
	}, 1, acct.ID)
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, outcome.Action)
	created := outcome.Transaction
	assert.Equal(t, storage.SourceBankSync, created.SourceType)
	assert.Equal(t, storage.DuplicateNone, created.DuplicateStatus)
	assert.True(t, created.IsApproved)
	require.NotNil(t, created.BankHash)
	assert.Equal(t, match.Fingerprint("-12.50", "2026-03-10", "Night n Day"), *created.BankHash)
}

func TestProcessor_MediumConfidenceStillCreates(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	acct := seedAccount(t, ledger, "0.00")

	// Same amount and day but an unrelated merchant: medium confidence,
	// which is not enough to hold the record.
	_, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: acct.ID, Merchant: "Z Energy",
		Amount: "-45.00", Date: "2026-03-10", IsApproved: true,
		SourceType: storage.SourceManual,
	})
	require.NoError(t, err)

	outcome, err := processor.Process(ctx, Record{
		Amount: "-45.00", Date: "2026-03-10",
		Merchant: "Countdown", BankTransactionID: "bank-tx-4",
	}, 1, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, outcome.Action)
}

func TestProcessor_RecurringIncomeSplits(t *testing.T) {
	ctx := context.Background()

	seedRecurring := func(t *testing.T, ledger *storage.MemoryLedger, surplusEnvID *int64, splits ...storage.IncomeSplit) {
		t.Helper()
		_, err := ledger.CreateRecurringIncome(ctx, &storage.RecurringIncome{
			UserID: 1, Name: "Acme Salary", Amount: "1000.00",
			Splits: splits, SurplusEnvelopeID: surplusEnvID,
		})
		require.NoError(t, err)
	}

	t.Run("matched income gets splits plus surplus and is held", func(t *testing.T) {
		processor, ledger := newTestProcessor(t)
		acct := seedAccount(t, ledger, "0.00")
		bills := seedEnvelope(t, ledger, "Bills", "0.00")
		groceries := seedEnvelope(t, ledger, "Groceries", "0.00")
		savings := seedEnvelope(t, ledger, "Savings", "0.00")

		seedRecurring(t, ledger, &savings.ID,
			storage.IncomeSplit{EnvelopeID: bills.ID, Amount: "600.00"},
			storage.IncomeSplit{EnvelopeID: groceries.ID, Amount: "300.00"},
		)

		outcome, err := processor.Process(ctx, Record{
			Amount: "1005.00", Date: "2026-03-15",
			Merchant: "ACME PAYROLL", BankTransactionID: "bank-tx-5",
		}, 1, acct.ID)
		require.NoError(t, err)

		assert.Equal(t, ActionCreated, outcome.Action)
		created := outcome.Transaction
		assert.Equal(t, "Auto-matched: Acme Salary", created.Description)
		assert.False(t, created.IsApproved)

		splits, err := ledger.SplitsForTransaction(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, splits, 3)
		assert.Equal(t, "600.00", splits[0].Amount)
		assert.Equal(t, "300.00", splits[1].Amount)
		assert.Equal(t, savings.ID, splits[2].EnvelopeID)
		assert.Equal(t, "105.00", splits[2].Amount)

		// Held for review: nothing moves until approval.
		gotAcct, err := ledger.Account(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.00", gotAcct.Balance)

		// Approval applies every split and the account total, once.
		require.NoError(t, processor.Approve(ctx, created.ID))
		require.NoError(t, processor.Approve(ctx, created.ID))

		for envID, want := range map[int64]string{
			bills.ID: "600.00", groceries.ID: "300.00", savings.ID: "105.00",
		} {
			env, err := ledger.Envelope(ctx, envID)
			require.NoError(t, err)
			assert.Equal(t, want, env.CurrentBalance)
		}
		gotAcct, err = ledger.Account(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "1005.00", gotAcct.Balance)
	})

	t.Run("remainder at a cent or below is not surplus", func(t *testing.T) {
		processor, ledger := newTestProcessor(t)
		acct := seedAccount(t, ledger, "0.00")
		bills := seedEnvelope(t, ledger, "Bills", "0.00")
		savings := seedEnvelope(t, ledger, "Savings", "0.00")

		seedRecurring(t, ledger, &savings.ID,
			storage.IncomeSplit{EnvelopeID: bills.ID, Amount: "1000.00"},
		)

		outcome, err := processor.Process(ctx, Record{
			Amount: "1000.01", Date: "2026-03-15",
			Merchant: "ACME PAYROLL", BankTransactionID: "bank-tx-6",
		}, 1, acct.ID)
		require.NoError(t, err)

		splits, err := ledger.SplitsForTransaction(ctx, outcome.Transaction.ID)
		require.NoError(t, err)
		assert.Len(t, splits, 1)
	})

	t.Run("no surplus envelope means no surplus split", func(t *testing.T) {
		processor, ledger := newTestProcessor(t)
		acct := seedAccount(t, ledger, "0.00")
		bills := seedEnvelope(t, ledger, "Bills", "0.00")

		seedRecurring(t, ledger, nil,
			storage.IncomeSplit{EnvelopeID: bills.ID, Amount: "600.00"},
		)

		outcome, err := processor.Process(ctx, Record{
			Amount: "1005.00", Date: "2026-03-15",
			Merchant: "ACME PAYROLL", BankTransactionID: "bank-tx-7",
		}, 1, acct.ID)
		require.NoError(t, err)

		splits, err := ledger.SplitsForTransaction(ctx, outcome.Transaction.ID)
		require.NoError(t, err)
		assert.Len(t, splits, 1)
	})

	t.Run("split write failure fails the record", func(t *testing.T) {
		processor, ledger := newTestProcessor(t)
		acct := seedAccount(t, ledger, "0.00")
		bills := seedEnvelope(t, ledger, "Bills", "0.00")

		seedRecurring(t, ledger, nil,
			storage.IncomeSplit{EnvelopeID: bills.ID, Amount: "600.00"},
		)
		ledger.CreateSplitErr = errors.New("disk full")

		_, err := processor.Process(ctx, Record{
			Amount: "1005.00", Date: "2026-03-15",
			Merchant: "ACME PAYROLL", BankTransactionID: "bank-tx-8",
		}, 1, acct.ID)
		assert.Error(t, err)
	})
}

func TestProcessor_ApproveMissingTransaction(t *testing.T) {
	processor, _ := newTestProcessor(t)

	err := processor.Approve(context.Background(), 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessor_BackfillFingerprints(t *testing.T) {
	processor, ledger := newTestProcessor(t)
	ctx := context.Background()

	legacy, err := ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: 1, Merchant: "Countdown",
		Amount: "-45.00", Date: "2026-03-10",
	})
	require.NoError(t, err)

	fp := match.Fingerprint("-10.00", "2026-03-11", "Z Energy")
	_, err = ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID: 1, AccountID: 1, Merchant: "Z Energy",
		Amount: "-10.00", Date: "2026-03-11",
		SourceType: storage.SourceBankSync, BankHash: &fp,
	})
	require.NoError(t, err)

	updated, err := processor.BackfillFingerprints(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := ledger.Transaction(ctx, legacy.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BankHash)
	assert.Equal(t, match.Fingerprint("-45.00", "2026-03-10", "Countdown"), *got.BankHash)
	assert.Equal(t, storage.SourceManual, got.SourceType)
}
