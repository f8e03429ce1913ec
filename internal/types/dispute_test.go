package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDisputePriorityForAmount(t *testing.T) {
	cases := []struct {
		amount   string
		expected DisputePriority
	}{
		{"1500", DisputePriorityHigh},
		{"1000.01", DisputePriorityHigh},
		{"1000", DisputePriorityMedium},
		{"750", DisputePriorityMedium},
		{"500.01", DisputePriorityMedium},
		{"500", DisputePriorityLow},
		{"100", DisputePriorityLow},
		{"0", DisputePriorityLow},
	}

	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		assert.Equal(t, tc.expected, DisputePriorityForAmount(amount), "amount %s", tc.amount)
	}
}

func TestDisputeTypeValidate(t *testing.T) {
	assert.True(t, DisputeTypeChargeback.Validate())
	assert.True(t, DisputeTypeInquiry.Validate())
	assert.False(t, DisputeType("refund").Validate())
	assert.False(t, DisputeType("").Validate())
}

func TestEvidenceTypeValidate(t *testing.T) {
	assert.True(t, EvidenceTypeReceipt.Validate())
	assert.True(t, EvidenceTypeCustomerComms.Validate())
	assert.False(t, EvidenceType("screenshot").Validate())
}
