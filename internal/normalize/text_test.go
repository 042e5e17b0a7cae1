package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	got, err := Name("  Ada Lovelace ")
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", got)

	// Non-Latin letters count as letters.
	got, err = Name("李明")
	require.NoError(t, err)
	require.Equal(t, "李明", got)

	_, err = Name("   ")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "name", fe.Field)

	_, err = Name("12345")
	require.ErrorAs(t, err, &fe)
	require.Equal(t, InvalidFormat, fe.Kind)

	_, err = Name(strings.Repeat("a", 101))
	require.ErrorAs(t, err, &fe)
	require.Equal(t, OutOfRange, fe.Kind)
}

func TestPlace(t *testing.T) {
	got, err := Place(" London, UK ")
	require.NoError(t, err)
	require.Equal(t, "London, UK", got)

	_, err = Place("")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, InvalidFormat, fe.Kind)
	require.Equal(t, "birth_place", fe.Field)

	_, err = Place(strings.Repeat("x", 201))
	require.ErrorAs(t, err, &fe)
	require.Equal(t, OutOfRange, fe.Kind)
}
