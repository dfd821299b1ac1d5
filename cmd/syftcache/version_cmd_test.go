package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmined/syftcache/internal/version"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.SetErr(&out)

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	got := strings.TrimSpace(out.String())
	require.Equal(t, version.DetailedWithApp(), got)
}
