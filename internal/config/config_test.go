package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
)

func f(v float64) *float64 { return &v }

func TestCutoffs_DirectForm(t *testing.T) {
	cfg := Config{LowCutoff: f(0.2), HighCutoff: f(0.8)}
	low, high, err := cfg.Cutoffs()
	require.NoError(t, err)
	require.Equal(t, 0.2, low)
	require.Equal(t, 0.8, high)
}

func TestCutoffs_MeanDeviationForm(t *testing.T) {
	cfg := Config{CutoffMean: f(1.0), CutoffDeviation: f(0.3)}
	low, high, err := cfg.Cutoffs()
	require.NoError(t, err)
	require.Equal(t, 0.7, low)
	require.Equal(t, 1.3, high)
}

func TestCutoffs_NeitherFormIsConfigurationError(t *testing.T) {
	cfg := Config{}
	_, _, err := cfg.Cutoffs()
	require.ErrorIs(t, err, bterrors.ErrConfiguration)
}

func TestCutoffs_BothFormsIsConfigurationError(t *testing.T) {
	cfg := Config{LowCutoff: f(0.2), HighCutoff: f(0.8), CutoffMean: f(1.0), CutoffDeviation: f(0.3)}
	_, _, err := cfg.Cutoffs()
	require.ErrorIs(t, err, bterrors.ErrConfiguration)
}
