package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeployed(t *testing.T) {
	old := Build
	t.Cleanup(func() { Build = old })

	Build = ""
	require.Equal(t, Development, Deployed())
	Build = " 2026.10.1 "
	require.Equal(t, "2026.10.1", Deployed())
}

func TestRichVersion(t *testing.T) {
	oldCommit, oldBuild := Commit, Build
	t.Cleanup(func() { Commit, Build = oldCommit, oldBuild })

	Commit, Build = "abc123", "b7"
	require.Equal(t, Version()+" commit=abc123 build=b7", RichVersion())
	require.True(t, strings.HasPrefix(Version(), "0."))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "rc.1", normalize("rc.1!"))
	require.Empty(t, normalize("+++"))
}
