package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestGetVersionInfo(t *testing.T) {
	is := is.New(t)
	info := GetVersionInfo()

	is.True(strings.HasPrefix(info, "interviewer version dev"))
	is.True(strings.Contains(info, "commit: unknown"))
	is.True(strings.Contains(info, runtime.Version()))
}

func TestGetVersionInfo_LinkerValues(t *testing.T) {
	is := is.New(t)
	orig := [3]string{Version, GitCommit, BuildTime}
	t.Cleanup(func() { Version, GitCommit, BuildTime = orig[0], orig[1], orig[2] })

	Version, GitCommit, BuildTime = "v1.2.0", "abc123", "2026-01-01T00:00:00Z"

	is.Equal(GetVersionInfo(), "interviewer version v1.2.0 (commit: abc123, built: 2026-01-01T00:00:00Z, go: "+runtime.Version()+")")
}
