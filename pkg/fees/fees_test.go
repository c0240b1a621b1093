package fees

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) EstimateFee(ctx context.Context, tx models.ParsedTransaction, network models.NetworkInfo) (FeeEstimate, error) {
	args := m.Called(ctx, tx, network)
	return args.Get(0).(FeeEstimate), args.Error(1)
}

var (
	testTx      = models.ParsedTransaction{ID: "tx-1", GasLimit: "21000"}
	testNetwork = models.NetworkInfo{ChainID: "0x1", CoinType: models.CoinETH, Decimals: 18, EIP1559: true}
)

func gwei(n string) amount.Amount {
	return amount.New(n).MultiplyByDecimals(9)
}

func sampleEstimate() FeeEstimate {
	return FeeEstimate{
		BaseFee:  gwei("10"),
		Slow:     gwei("1"),
		Average:  gwei("2"),
		Fast:     gwei("3"),
		GasPrice: gwei("12"),
		GasLimit: amount.FromUint64(21000),
	}
}

func TestEstimateReady(t *testing.T) {
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(sampleEstimate(), nil).Once()

	var updates []Snapshot
	e := NewEngine(src, testTx, testNetwork, func(s Snapshot) { updates = append(updates, s) })
	assert.Equal(t, Idle, e.State())
	_, ok := e.Latest()
	assert.False(t, ok)

	_, err := e.Estimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ready, e.State())

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.False(t, latest.EstimatedAt.IsZero())
	require.Len(t, updates, 1)
	assert.Equal(t, Ready, updates[0].State)

	// 21000 * (10 + 2) gwei
	total, err := e.TotalCost()
	require.NoError(t, err)
	assert.Equal(t, "0.000252", total.String())
	assert.Equal(t, gwei("22").String(), e.MaxFeePerGas().String())
	src.AssertExpectations(t)
}

func TestFailedKeepsLastSettled(t *testing.T) {
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(sampleEstimate(), nil).Once()
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(FeeEstimate{}, errors.New("rpc down")).Once()

	e := NewEngine(src, testTx, testNetwork, nil)
	_, err := e.Estimate(context.Background())
	require.NoError(t, err)
	_, err = e.Estimate(context.Background())
	require.Error(t, err)

	assert.Equal(t, Failed, e.State())
	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, gwei("2").String(), latest.Average.String())
	assert.EqualError(t, e.Snapshot().Err, "rpc down")
}

func TestCustomOverrideAndRevert(t *testing.T) {
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(sampleEstimate(), nil)

	e := NewEngine(src, testTx, testNetwork, nil)
	_, err := e.Estimate(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Select(TierFast))
	assert.Equal(t, gwei("3").String(), e.PriorityFee().String())

	assert.ErrorIs(t, e.SetCustom(amount.New("-1")), ErrInvalidFee)
	require.NoError(t, e.SetCustom(gwei("7")))
	assert.Equal(t, TierCustom, e.Snapshot().Selected)
	assert.Equal(t, gwei("7").String(), e.PriorityFee().String())

	// A refresh keeps the custom value.
	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, gwei("7").String(), e.PriorityFee().String())
	snap := e.Snapshot()
	require.NotNil(t, snap.Estimate)
	assert.Equal(t, gwei("1").String(), snap.Estimate.Slow.String())

	e.ClearCustom()
	assert.Equal(t, TierFast, e.Snapshot().Selected)
	assert.Equal(t, gwei("3").String(), e.PriorityFee().String())
	assert.ErrorIs(t, e.Select(TierCustom), ErrInvalidTier)
	assert.ErrorIs(t, e.Select("turbo"), ErrInvalidTier)
}

func TestChoiceCarriesOver(t *testing.T) {
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(sampleEstimate(), nil)

	old := NewEngine(src, testTx, testNetwork, nil)
	require.NoError(t, old.Select(TierFast))
	require.NoError(t, old.SetCustom(gwei("7")))

	e := NewEngine(src, testTx, testNetwork, nil)
	e.Restore(old.Choice())
	_, err := e.Estimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TierCustom, e.Snapshot().Selected)
	assert.Equal(t, gwei("7").String(), e.PriorityFee().String())
	assert.Equal(t, gwei("17").String(), e.GasPrice().String())

	e.ClearCustom()
	assert.Equal(t, TierFast, e.Snapshot().Selected)

	// A custom tier without a value falls back to the last suggested tier.
	e.Restore(Choice{Selected: TierCustom, Previous: TierSlow, Custom: amount.NaN()})
	assert.Equal(t, TierSlow, e.Snapshot().Selected)
}

func TestLegacyNetworkUsesGasPrice(t *testing.T) {
	legacy := testNetwork
	legacy.EIP1559 = false
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, legacy).Return(sampleEstimate(), nil)

	e := NewEngine(src, testTx, legacy, nil)
	_, err := e.Estimate(context.Background())
	require.NoError(t, err)

	total, err := e.TotalCost()
	require.NoError(t, err)
	assert.Equal(t, "0.000252", total.String())
}

func TestTotalCostWithoutEstimate(t *testing.T) {
	e := NewEngine(new(MockSource), testTx, testNetwork, nil)
	total, err := e.TotalCost()
	assert.ErrorIs(t, err, ErrNoEstimate)
	assert.True(t, total.IsNaN())
}

// blockingSource resolves each call when release is signalled.
type blockingSource struct {
	release chan FeeEstimate
	calls   atomic.Int32
}

func (b *blockingSource) EstimateFee(ctx context.Context, _ models.ParsedTransaction, _ models.NetworkInfo) (FeeEstimate, error) {
	b.calls.Add(1)
	select {
	case est := <-b.release:
		return est, nil
	case <-ctx.Done():
		return FeeEstimate{}, ctx.Err()
	}
}

func TestCancelDropsInFlightEstimate(t *testing.T) {
	src := &blockingSource{release: make(chan FeeEstimate)}
	e := NewEngine(src, testTx, testNetwork, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Estimate(context.Background())
		done <- err
	}()
	assert.Eventually(t, func() bool { return e.State() == Estimating }, time.Second, 5*time.Millisecond)

	e.Cancel()
	src.release <- sampleEstimate()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	_, ok := e.Latest()
	assert.False(t, ok)

	_, err := e.Estimate(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestRefreshSkipsWhileEstimating(t *testing.T) {
	src := &blockingSource{release: make(chan FeeEstimate)}
	e := NewEngine(src, testTx, testNetwork, nil)

	go func() { _, _ = e.Estimate(context.Background()) }()
	assert.Eventually(t, func() bool { return e.State() == Estimating }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())

	src.release <- sampleEstimate()
	assert.Eventually(t, func() bool { return e.State() == Ready }, time.Second, 5*time.Millisecond)
}

func TestRunRefreshesUntilCancelled(t *testing.T) {
	src := new(MockSource)
	src.On("EstimateFee", mock.Anything, testTx, testNetwork).Return(sampleEstimate(), nil)

	var settled atomic.Int32
	e := NewEngine(src, testTx, testNetwork, func(Snapshot) { settled.Add(1) })
	stopped := make(chan struct{})
	go func() {
		e.Run(context.Background(), 10*time.Millisecond)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		return settled.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	e.Cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Cancel")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "State(9)", State(9).String())
}
