package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
)

type fakeCreator struct {
	rec       *recorder
	createErr error
}

func (f *fakeCreator) CreateMarket(_ context.Context, _ *crypto.Signer, _, _, _ string, _ time.Time) (domain.TxHandle, error) {
	f.rec.add("create")
	if f.createErr != nil {
		return domain.TxHandle{}, f.createErr
	}
	return domain.TxHandle{Hash: "0xcreate", SubmittedAt: time.Now().UTC()}, nil
}

// slowLocks parks Acquire until gate closes, so tests can hold a run inside
// the lock acquisition.
type slowLocks struct {
	started chan struct{}
	gate    chan struct{}
}

func (l *slowLocks) Acquire(ctx context.Context, _ string, _ time.Duration) (func(), error) {
	select {
	case <-l.started:
	default:
		close(l.started)
	}
	select {
	case <-l.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() {}, nil
}

func validCreateParams() CreateParams {
	return CreateParams{
		Question: "Will the launch happen this year?",
		OptionA:  "Yes",
		OptionB:  "No",
		EndTime:  time.Now().Add(30 * 24 * time.Hour).UTC(),
	}
}

func TestCreateSubmitSinglePhase(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	creator := &fakeCreator{rec: rec}
	c := NewCreation(confirmer, creator, testSigner(t), CreationDeps{}, testLogger())

	result, err := c.Submit(context.Background(), validCreateParams())

	require.NoError(t, err)
	assert.Equal(t, domain.CreateStateCreated, c.State())
	assert.Equal(t, "0xcreate", result.CreateTx.Hash)
	assert.NotEmpty(t, result.RecordID)
	assert.Equal(t, []string{"create", "confirm:0xcreate"}, rec.snapshot())
}

func TestCreateSubmitValidatesAllFields(t *testing.T) {
	rec := &recorder{}
	c := NewCreation(&fakeConfirmer{rec: rec}, &fakeCreator{rec: rec}, testSigner(t), CreationDeps{}, testLogger())

	cases := []struct {
		name   string
		mutate func(*CreateParams)
		field  string
	}{
		{"empty question", func(p *CreateParams) { p.Question = "" }, "question"},
		{"empty option a", func(p *CreateParams) { p.OptionA = "" }, "option_a"},
		{"empty option b", func(p *CreateParams) { p.OptionB = "" }, "option_b"},
		{"zero end time", func(p *CreateParams) { p.EndTime = time.Time{} }, "end_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validCreateParams()
			tc.mutate(&params)

			_, err := c.Submit(context.Background(), params)

			var valErr *domain.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tc.field, valErr.Field)
		})
	}

	// No write was ever submitted and the instance is still usable.
	assert.Equal(t, domain.CreateStateIdle, c.State())
	assert.Empty(t, rec.snapshot())
}

func TestCreateSubmitRejectsSecondRunDuringLockAcquisition(t *testing.T) {
	rec := &recorder{}
	locks := &slowLocks{started: make(chan struct{}), gate: make(chan struct{})}
	c := NewCreation(&fakeConfirmer{rec: rec}, &fakeCreator{rec: rec}, testSigner(t), CreationDeps{Locks: locks}, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), validCreateParams())
		done <- err
	}()

	// Park the first run inside the account-lock acquisition.
	<-locks.started

	_, err := c.Submit(context.Background(), validCreateParams())
	assert.ErrorIs(t, err, domain.ErrWorkflowBusy)

	close(locks.gate)
	require.NoError(t, <-done)

	// Exactly one create ran across both Submit calls.
	assert.Equal(t, []string{"create", "confirm:0xcreate"}, rec.snapshot())
}

func TestCreateSubmitFailsOnRevert(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{
		rec: rec,
		errFor: map[string]error{
			"0xcreate": &domain.ConfirmationError{TxHash: "0xcreate", Reason: "transaction reverted"},
		},
	}
	creator := &fakeCreator{rec: rec}
	c := NewCreation(confirmer, creator, testSigner(t), CreationDeps{}, testLogger())

	_, err := c.Submit(context.Background(), validCreateParams())

	var confErr *domain.ConfirmationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, domain.CreateStateFailed, c.State())
}
