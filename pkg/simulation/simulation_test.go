package simulation

import (
	"encoding/json"
	"testing"

	"txconfirm/pkg/amount"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyEmpty(t *testing.T) {
	c := Classify(Result{})
	require.NotNil(t, c)
	assert.True(t, c.HasNoChanges)
	assert.False(t, c.HasCriticalWarning)
	assert.False(t, c.HasMultipleCategories)
	assert.Empty(t, c.Transfers)
}

func TestClassifyNotRunIsNil(t *testing.T) {
	var c *Classified
	assert.Nil(t, c.WarningMessages())
}

func TestClassifyBuckets(t *testing.T) {
	tests := []struct {
		name     string
		changes  []StateChange
		counts   [5]int // transfers, approvals, stake, owner, other
		multiple bool
	}{
		{
			name:    "native transfer",
			changes: []StateChange{{Kind: "native", NativeTransfer: &NativeTransfer{Amount: amount.New("1")}}},
			counts:  [5]int{1, 0, 0, 0, 0},
		},
		{
			name: "transfer and approval",
			changes: []StateChange{
				{TokenTransfer: &TokenTransfer{Symbol: "USDC"}},
				{ApprovalForAll: &ApprovalForAll{Approved: true}},
			},
			counts:   [5]int{1, 1, 0, 0, 0},
			multiple: true,
		},
		{
			name: "record carrying both payloads",
			changes: []StateChange{
				{NFTTransfer: &NFTTransfer{TokenID: "1"}, Approval: &Approval{Spender: "0x1"}},
			},
			counts:   [5]int{1, 1, 0, 0, 0},
			multiple: true,
		},
		{
			name: "stake and owner",
			changes: []StateChange{
				{StakeAuthority: &StakeAuthorityChange{StakeAccount: "s"}},
				{OwnerChange: &OwnerChange{Account: "a"}},
			},
			counts:   [5]int{0, 0, 1, 1, 0},
			multiple: true,
		},
		{
			name:    "tag without payload",
			changes: []StateChange{{Kind: "native"}},
			counts:  [5]int{0, 0, 0, 0, 1},
		},
		{
			name: "unknown change beside a transfer",
			changes: []StateChange{
				{Kind: "contract_deploy"},
				{NativeTransfer: &NativeTransfer{Amount: amount.New("1")}},
			},
			counts:   [5]int{1, 0, 0, 0, 1},
			multiple: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(Result{Changes: tt.changes})
			assert.Len(t, c.Transfers, tt.counts[0])
			assert.Len(t, c.Approvals, tt.counts[1])
			assert.Len(t, c.StakeAuthorityChanges, tt.counts[2])
			assert.Len(t, c.OwnerChanges, tt.counts[3])
			assert.Len(t, c.Other, tt.counts[4])
			assert.Equal(t, tt.multiple, c.HasMultipleCategories)
			assert.Equal(t, tt.counts == [5]int{}, c.HasNoChanges)
		})
	}
}

func TestClassifyCriticalWarning(t *testing.T) {
	r := Result{Warnings: []Warning{
		{Severity: SeverityWarning, Message: "new contract"},
		{Severity: SeverityCritical, Message: "drainer"},
	}}
	c := Classify(r)
	assert.True(t, c.HasCriticalWarning)
	assert.True(t, c.HasNoChanges)
	assert.Equal(t, []string{"drainer", "new contract"}, c.WarningMessages())

	c = Classify(Result{Warnings: []Warning{{Severity: SeverityWarning}}})
	assert.False(t, c.HasCriticalWarning)
}

func TestClassifySeverityCase(t *testing.T) {
	c := Classify(Result{Warnings: []Warning{
		{Severity: "info", Message: "first seen"},
		{Severity: "SUSPICIOUS", Message: "odd"},
		{Severity: " critical ", Message: "drainer"},
		{Severity: "Warning", Message: "new contract"},
	}})
	assert.True(t, c.HasCriticalWarning)
	assert.Equal(t, SeverityCritical, c.Warnings[2].Severity)
	assert.Equal(t, []string{"drainer", "new contract", "first seen", "odd"}, c.WarningMessages())
}

func TestClassifyDoesNotShareInput(t *testing.T) {
	r := Result{Warnings: []Warning{{Severity: SeverityInfo, Message: "a"}}}
	c := Classify(r)
	c.Warnings[0].Message = "changed"
	assert.Equal(t, "a", r.Warnings[0].Message)
}

func TestResultJSON(t *testing.T) {
	body := `{"changes":[{"kind":"erc20","direction":"out","token_transfer":{"contract":"0xa","amount":"1500000","symbol":"USDC","decimals":6}}],
		"warnings":[{"severity":"CRITICAL","message":"known drainer"}]}`
	var r Result
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	require.Len(t, r.Changes, 1)
	require.NotNil(t, r.Changes[0].TokenTransfer)
	assert.Equal(t, "1500000", r.Changes[0].TokenTransfer.Amount.String())
	assert.Equal(t, DirectionOut, r.Changes[0].Direction)
	assert.True(t, Classify(r).HasCriticalWarning)

	var w Warning
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"critical","message":"x"}`), &w))
	assert.Equal(t, SeverityCritical, w.Severity)
}
