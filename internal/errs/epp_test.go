package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesPrototype(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("create: %w", ErrPremiumDiscount.About("TOKEN-1"))

	require.True(t, errors.Is(err, ErrPremiumDiscount))
	require.False(t, errors.Is(err, ErrFeesMismatch))
	require.Equal(t, "create: A nonzero discount code cannot be applied to premium domains: TOKEN-1", err.Error())

	e, ok := As(err)
	require.True(t, ok)
	require.Equal(t, CodeCommandUse, e.Code)
	require.Equal(t, "TOKEN-1", e.Subject)
}

func TestCurrencyMismatch(t *testing.T) {
	t.Parallel()
	err := CurrencyMismatch("USD", "EUR")
	require.ErrorIs(t, err, ErrCurrencyMismatch)
	require.Contains(t, err.Error(), "USD != EUR")

	_, ok := As(ErrNotFound)
	require.False(t, ok)
}
