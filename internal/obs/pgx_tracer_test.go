package obs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLOperation(t *testing.T) {
	require.Equal(t, "INSERT", sqlOperation("  insert into audit_logs (id) values ($1)"))
	require.Equal(t, "WITH", sqlOperation("with x as (select 1) select * from x"))
	require.Equal(t, "UNKNOWN", sqlOperation("   "))
}

func TestTruncateSQL(t *testing.T) {
	long := "SELECT " + strings.Repeat("a", 400)
	out := truncateSQL(long)
	require.Len(t, out, maxStatementLen+3)
	require.True(t, strings.HasSuffix(out, "..."))
	require.Equal(t, "SELECT 1", truncateSQL(" SELECT 1 "))
}
