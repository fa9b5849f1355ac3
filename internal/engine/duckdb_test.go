package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadOnlyDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		// In-memory databases cannot be opened read-only.
		{"", ""},
		{"analytics.duckdb", "analytics.duckdb?access_mode=read_only"},
		{"analytics.duckdb?threads=4", "analytics.duckdb?threads=4&access_mode=read_only"},
		// An explicit access_mode wins.
		{"analytics.duckdb?access_mode=read_write", "analytics.duckdb?access_mode=read_write"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReadOnlyDSN(tc.dsn))
	}
}
