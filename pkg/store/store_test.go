package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"txconfirm/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spender = "0x1111111111111111111111111111111111111111"

func ethSend(id string) models.PendingTransaction {
	return models.PendingTransaction{
		ID:       id,
		ChainID:  "0x1",
		CoinType: models.CoinETH,
		TxType:   models.TxETHSend,
		Data: models.TxDataUnion{Eth: &models.EthTxData{
			To:       "0x2222222222222222222222222222222222222222",
			Value:    "0xde0b6b3a7640000",
			GasLimit: "0x5208",
			Nonce:    "0x1",
		}},
	}
}

func approve(id string) models.PendingTransaction {
	return models.PendingTransaction{
		ID:       id,
		ChainID:  "0x1",
		CoinType: models.CoinETH,
		TxType:   models.TxERC20Approve,
		TxArgs:   []string{spender, "0xffff"},
		Data: models.TxDataUnion{Eth: &models.EthTxData{
			To:       "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Value:    "0x0",
			GasLimit: "0xb411",
		}},
	}
}

func ids(t *testing.T, s *Store) []string {
	t.Helper()
	txs, err := s.Pending(context.Background())
	require.NoError(t, err)
	var out []string
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

func TestAdd(t *testing.T) {
	s := New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	id, err := s.Add(ethSend(""))
	require.NoError(t, err)
	assert.Len(t, id, 36)

	tx, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, fixed, tx.CreatedAt)

	_, err = s.Add(ethSend("a"))
	require.NoError(t, err)
	_, err = s.Add(ethSend("a"))
	assert.ErrorIs(t, err, ErrInvalidTx)

	bad := ethSend("b")
	bad.Data.Fil = &models.FilTxData{}
	_, err = s.Add(bad)
	assert.ErrorIs(t, err, ErrInvalidTx)

	untyped := ethSend("c")
	untyped.TxType = ""
	_, err = s.Add(untyped)
	assert.ErrorIs(t, err, ErrInvalidTx)

	assert.Equal(t, []string{id, "a"}, ids(t, s))
}

func TestPendingReturnsCopies(t *testing.T) {
	s := New()
	_, err := s.Add(ethSend("a"))
	require.NoError(t, err)

	txs, err := s.Pending(context.Background())
	require.NoError(t, err)
	txs[0].Data.Eth.Nonce = "0x99"

	tx, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "0x1", tx.Data.Eth.Nonce)
}

func TestImport(t *testing.T) {
	s := New()
	n, err := s.Import(strings.NewReader(`[
		{"id": "a", "chain_id": "0x1", "coin": 60, "tx_type": "eth_send", "data": {"eth": {"to": "0x2222222222222222222222222222222222222222", "value": "0x1", "gas_limit": "0x5208", "nonce": "0x0"}}},
		{"id": "b", "chain_id": "0x65", "coin": 501, "tx_type": "solana_system_transfer", "data": {"solana": {"to_wallet_address": "11111111111111111111111111111111", "lamports": 1000}}}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Import(strings.NewReader(`{"id": "c", "tx_type": "sign_message", "data": {"sign_message": {"message": "hello"}}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, s))

	_, err = s.Import(strings.NewReader(`[{"id": "d", "tx_type": "eth_send", "data": {}}]`))
	assert.ErrorIs(t, err, ErrInvalidTx)

	_, err = s.Import(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestConfirmReject(t *testing.T) {
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Add(ethSend(id))
		require.NoError(t, err)
	}
	ctx := context.Background()

	require.NoError(t, s.Confirm(ctx, "b"))
	assert.Equal(t, []string{"a", "c"}, ids(t, s))
	require.NoError(t, s.Reject(ctx, "a"))
	assert.Equal(t, []string{"c"}, ids(t, s))

	assert.ErrorIs(t, s.Confirm(ctx, "b"), ErrNotFound)

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, StatusConfirmed, h[0].Status)
	assert.Equal(t, "b", h[0].Transaction.ID)
	assert.Equal(t, StatusRejected, h[1].Status)

	require.NoError(t, s.RejectAll(ctx))
	assert.Empty(t, ids(t, s))
	assert.Len(t, s.History(), 3)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	_, err := s.Add(ethSend("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Confirm(ctx, "a"), context.Canceled)
	assert.ErrorIs(t, s.RejectAll(ctx), context.Canceled)
	_, err = s.Pending(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, ids(t, s))
}

func TestUpdateNonce(t *testing.T) {
	s := New()
	_, err := s.Add(ethSend("a"))
	require.NoError(t, err)
	_, err = s.Add(models.PendingTransaction{ID: "z", TxType: models.TxZecSend, Data: models.TxDataUnion{Zec: &models.ZecTxData{}}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpdateNonce(ctx, "a", "0x9"))
	tx, _ := s.Get("a")
	assert.Equal(t, "0x9", tx.Data.Eth.Nonce)

	assert.Error(t, s.UpdateNonce(ctx, "a", "9"))
	assert.ErrorIs(t, s.UpdateNonce(ctx, "z", "0x1"), ErrUnsupported)
	assert.ErrorIs(t, s.UpdateNonce(ctx, "missing", "0x1"), ErrNotFound)
}

func TestUpdateGasFields(t *testing.T) {
	s := New()
	_, err := s.Add(ethSend("a"))
	require.NoError(t, err)
	_, err = s.Add(models.PendingTransaction{
		ID:     "f",
		TxType: models.TxFilSend,
		Data: models.TxDataUnion{Fil: &models.FilTxData{
			GasLimit:   "1000",
			GasFeeCap:  "100",
			GasPremium: "10",
		}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpdateGasFields(ctx, "a", models.GasFields{GasLimit: "0x7530", GasPrice: "0x3b9aca00"}))
	tx, _ := s.Get("a")
	assert.Equal(t, "0x7530", tx.Data.Eth.GasLimit)
	assert.Equal(t, "0x3b9aca00", tx.Data.Eth.GasPrice)
	assert.Equal(t, "0x1", tx.Data.Eth.Nonce)

	require.NoError(t, s.UpdateGasFields(ctx, "f", models.GasFields{GasLimit: "0x7d0", MaxFeePerGas: "0xc8"}))
	tx, _ = s.Get("f")
	assert.Equal(t, "2000", tx.Data.Fil.GasLimit)
	assert.Equal(t, "200", tx.Data.Fil.GasFeeCap)
	assert.Equal(t, "10", tx.Data.Fil.GasPremium)

	require.NoError(t, s.UpdateGasFields(ctx, "f", models.GasFields{GasPrice: "0x12c"}))
	tx, _ = s.Get("f")
	assert.Equal(t, "300", tx.Data.Fil.GasFeeCap)

	assert.Error(t, s.UpdateGasFields(ctx, "f", models.GasFields{GasLimit: "zz"}))
}

func TestUpdateSpendAllowance(t *testing.T) {
	s := New()
	_, err := s.Add(approve("a"))
	require.NoError(t, err)
	_, err = s.Add(ethSend("e"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpdateSpendAllowance(ctx, "a", spender, "0x989680"))
	tx, _ := s.Get("a")
	assert.Equal(t, []string{spender, "0x989680"}, tx.TxArgs)
	assert.Equal(t, "0x095ea7b3"+
		"0000000000000000000000001111111111111111111111111111111111111111"+
		"0000000000000000000000000000000000000000000000000000000000989680", tx.Data.Eth.Data)

	assert.Error(t, s.UpdateSpendAllowance(ctx, "a", "0x3333333333333333333333333333333333333333", "0x1"))
	assert.Error(t, s.UpdateSpendAllowance(ctx, "a", spender, "10"))
	assert.Error(t, s.UpdateSpendAllowance(ctx, "a", "nope", "0x1"))
	assert.ErrorIs(t, s.UpdateSpendAllowance(ctx, "e", spender, "0x1"), ErrUnsupported)
}
