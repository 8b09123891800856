package tally

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, xml string) *Node {
	t.Helper()
	root, err := Parse(xml)
	require.NoError(t, err)
	return root
}

func loadFixture(t *testing.T, name string) *Node {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	root, err := ParseBytes(raw)
	require.NoError(t, err)
	return root
}

// firstTag parses xml and returns the first node stored under tag.
func firstTag(t *testing.T, xml, tag string) any {
	t.Helper()
	found := Collect(mustParse(t, xml), tag)
	require.NotEmpty(t, found, "no %s in document", tag)
	return found[0]
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
