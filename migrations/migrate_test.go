package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_checkin.sql", names[0])
	assert.IsIncreasing(t, names)
}

func TestCheckinSchema(t *testing.T) {
	body, err := files.ReadFile("001_checkin.sql")
	require.NoError(t, err)

	sql := string(body)
	for _, table := range []string{"events", "tickets", "verification_attempts"} {
		assert.True(t, strings.Contains(sql, table), "schema should define %s", table)
	}
}
