// Package store keeps the wallet's unapproved transactions in memory and
// applies the confirm, reject and edit commands to them.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("pending transaction not found")
	ErrUnsupported = errors.New("operation not supported for this transaction")
	ErrInvalidTx   = errors.New("invalid pending transaction")
)

var approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]

// Status of a settled request.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Record is a settled request kept for display.
type Record struct {
	Transaction models.PendingTransaction `json:"transaction"`
	Status      Status                    `json:"status"`
	SettledAt   time.Time                 `json:"settled_at"`
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	pending []models.PendingTransaction
	history []Record
	log     log.Logger
	now     func() time.Time
}

func New() *Store {
	return &Store{
		log: log.New("module", "store"),
		now: time.Now,
	}
}

// Add queues tx and returns its id. A missing id is generated.
func (s *Store) Add(tx models.PendingTransaction) (string, error) {
	if err := validate(tx); err != nil {
		return "", err
	}
	tx = tx.Clone()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(tx.ID) >= 0 {
		return "", fmt.Errorf("%w: duplicate id %s", ErrInvalidTx, tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	s.pending = append(s.pending, tx)
	s.log.Info("Queued pending transaction", "id", tx.ID, "type", tx.TxType, "chain", tx.ChainID)
	return tx.ID, nil
}

func validate(tx models.PendingTransaction) error {
	n := 0
	for _, set := range []bool{
		tx.Data.Eth != nil,
		tx.Data.Solana != nil,
		tx.Data.Fil != nil,
		tx.Data.Zec != nil,
		tx.Data.SignMessage != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: expected exactly one data payload, got %d", ErrInvalidTx, n)
	}
	if tx.TxType == "" {
		return fmt.Errorf("%w: missing tx_type", ErrInvalidTx)
	}
	return nil
}

// Import reads a JSON array (or a single object) of pending transactions.
func (s *Store) Import(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	data = bytes.TrimSpace(data)
	var txs []models.PendingTransaction
	if len(data) > 0 && data[0] == '{' {
		var tx models.PendingTransaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return 0, err
		}
		txs = append(txs, tx)
	} else if err := json.Unmarshal(data, &txs); err != nil {
		return 0, err
	}
	for i, tx := range txs {
		if _, err := s.Add(tx); err != nil {
			return i, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return len(txs), nil
}

// ImportFile imports pending transactions from a JSON file.
func (s *Store) ImportFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return s.Import(f)
}

// Pending returns copies of the unapproved transactions in arrival order.
func (s *Store) Pending(ctx context.Context) ([]models.PendingTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PendingTransaction, 0, len(s.pending))
	for _, tx := range s.pending {
		out = append(out, tx.Clone())
	}
	return out, nil
}

func (s *Store) Get(id string) (models.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.PendingTransaction{}, ErrNotFound
	}
	return s.pending[i].Clone(), nil
}

// History returns settled requests, oldest first.
func (s *Store) History() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.history...)
}

func (s *Store) Confirm(ctx context.Context, id string) error {
	return s.settle(ctx, id, StatusConfirmed)
}

func (s *Store) Reject(ctx context.Context, id string) error {
	return s.settle(ctx, id, StatusRejected)
}

// RejectAll rejects every pending request.
func (s *Store) RejectAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, tx := range s.pending {
		s.history = append(s.history, Record{Transaction: tx, Status: StatusRejected, SettledAt: now})
	}
	s.log.Info("Rejected all pending transactions", "count", len(s.pending))
	s.pending = nil
	return nil
}

func (s *Store) settle(ctx context.Context, id string, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	tx := s.pending[i]
	s.pending = append(s.pending[:i], s.pending[i+1:]...)
	s.history = append(s.history, Record{Transaction: tx, Status: status, SettledAt: s.now()})
	s.log.Info("Settled pending transaction", "id", id, "status", status)
	return nil
}

// UpdateNonce sets a custom nonce on an EVM transaction.
func (s *Store) UpdateNonce(ctx context.Context, id, nonceHex string) error {
	if _, err := hexutil.DecodeUint64(nonceHex); err != nil {
		return fmt.Errorf("invalid nonce %q: %w", nonceHex, err)
	}
	return s.update(ctx, id, func(tx *models.PendingTransaction) error {
		if tx.Data.Eth == nil {
			return ErrUnsupported
		}
		tx.Data.Eth.Nonce = nonceHex
		return nil
	})
}

// UpdateGasFields applies hex gas values. Filecoin messages store them as
// decimal strings: the fee cap comes from MaxFeePerGas (or GasPrice) and the
// premium from MaxPriorityFeePerGas.
func (s *Store) UpdateGasFields(ctx context.Context, id string, fields models.GasFields) error {
	return s.update(ctx, id, func(tx *models.PendingTransaction) error {
		switch {
		case tx.Data.Eth != nil:
			eth := tx.Data.Eth
			setIf(&eth.GasLimit, fields.GasLimit)
			setIf(&eth.GasPrice, fields.GasPrice)
			setIf(&eth.MaxPriorityFeePerGas, fields.MaxPriorityFeePerGas)
			setIf(&eth.MaxFeePerGas, fields.MaxFeePerGas)
			return nil
		case tx.Data.Fil != nil:
			fil := tx.Data.Fil
			feeCap := fields.MaxFeePerGas
			if feeCap == "" {
				feeCap = fields.GasPrice
			}
			for _, f := range []struct {
				dst *string
				hex string
			}{
				{&fil.GasLimit, fields.GasLimit},
				{&fil.GasFeeCap, feeCap},
				{&fil.GasPremium, fields.MaxPriorityFeePerGas},
			} {
				if f.hex == "" {
					continue
				}
				v := amount.New(f.hex)
				if v.IsNaN() || v.IsNegative() || !v.IsInteger() {
					return fmt.Errorf("invalid gas value %q", f.hex)
				}
				*f.dst = v.String()
			}
			return nil
		}
		return ErrUnsupported
	})
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// UpdateSpendAllowance rewrites an ERC20 approve with a new allowance and
// re-encodes its calldata.
func (s *Store) UpdateSpendAllowance(ctx context.Context, id, spender, allowanceHex string) error {
	value, err := hexutil.DecodeBig(allowanceHex)
	if err != nil {
		return fmt.Errorf("invalid allowance %q: %w", allowanceHex, err)
	}
	if value.BitLen() > 256 {
		return fmt.Errorf("invalid allowance %q: exceeds 256 bits", allowanceHex)
	}
	if !common.IsHexAddress(spender) {
		return fmt.Errorf("invalid spender %q", spender)
	}
	return s.update(ctx, id, func(tx *models.PendingTransaction) error {
		if tx.TxType != models.TxERC20Approve || tx.Data.Eth == nil {
			return ErrUnsupported
		}
		if len(tx.TxArgs) > 0 && !strings.EqualFold(tx.TxArgs[0], spender) {
			return fmt.Errorf("spender %s does not match the request", spender)
		}
		tx.Data.Eth.Data = hexutil.Encode(encodeApprove(common.HexToAddress(spender), value))
		tx.TxArgs = []string{spender, hexutil.EncodeBig(value)}
		return nil
	})
}

func encodeApprove(spender common.Address, value *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, approveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
	return data
}

func (s *Store) update(ctx context.Context, id string, fn func(tx *models.PendingTransaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	tx := s.pending[i].Clone()
	if err := fn(&tx); err != nil {
		return err
	}
	s.pending[i] = tx
	s.log.Debug("Updated pending transaction", "id", id)
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, tx := range s.pending {
		if tx.ID == id {
			return i
		}
	}
	return -1
}
