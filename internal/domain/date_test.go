package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2019-06-30")
	require.NoError(t, err)
	require.Equal(t, time.Date(2019, time.June, 30, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []string{"", "2019-6-30", "30-06-2019", "2019-02-30", "2019-06-30T10:00:00Z", "yesterday"} {
		_, err := ParseDate(bad)
		require.ErrorIs(t, err, ErrBadDateFormat, bad)
	}
}

func TestCivilDateDropsTimeOfDay(t *testing.T) {
	in := time.Date(2024, time.May, 4, 23, 59, 0, 0, time.UTC)
	require.Equal(t, "2024-05-04", FormatDate(CivilDate(in)))
	require.Equal(t, 0, CivilDate(in).Hour())
}
