package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPack_Usable(t *testing.T) {
	published := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		pack     *Pack
		expected bool
	}{
		{"nil pack", nil, false},
		{"building", &Pack{ID: "PP_20240115_1", Status: PackBuilding}, false},
		{"ready but unpublished", &Pack{ID: "PP_20240115_1", Status: PackReady}, false},
		{"ready and published", &Pack{ID: "PP_20240115_1", Status: PackReady, PublishedAt: &published}, true},
		{"stale", &Pack{ID: "PP_20240115_1", Status: PackStale, PublishedAt: &published}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.pack.Usable())
		})
	}
}

func TestPack_Age(t *testing.T) {
	published := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	pack := &Pack{PublishedAt: &published}

	assert.Equal(t, 6*time.Hour, pack.Age(published.Add(6*time.Hour)))

	unpublished := &Pack{}
	assert.Greater(t, unpublished.Age(published), 100*365*24*time.Hour)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"pack validation", &PackValidationError{PackID: "latest"}, KindValidation},
		{"pack not found", &PackNotFoundError{PackID: "2024-01-15"}, KindNotFound},
		{"stale", &PackStaleError{PackID: "PP_20240115_1"}, KindStale},
		{"capability", &CapabilityNotFoundError{Capability: "risk.dar"}, KindNotFound},
		{"insufficient history", &InsufficientHistoryError{Symbol: "AAPL"}, KindComputation},
		{"reconciliation", &ReconciliationError{}, KindComputation},
		{"wrapped", fmt.Errorf("step failed: %w", &MissingBetaError{Symbol: "SAP"}), KindNotFound},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestComputationError_Unwrap(t *testing.T) {
	inner := errors.New("singular matrix")
	err := &ComputationError{Op: "regress AAPL", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "regress AAPL: singular matrix", err.Error())
}
