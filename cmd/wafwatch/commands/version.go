package commands

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// buildInfo is what the binary knows about how it was built.
type buildInfo struct {
	Version  string
	Revision string
	Time     string
	Modified bool
}

// readBuildInfo resolves the version, preferring the ldflags value and
// falling back to the module version recorded by `go install`.
func readBuildInfo() buildInfo {
	info, _ := debug.ReadBuildInfo()
	return resolveBuildInfo(version, info)
}

func resolveBuildInfo(ldVersion string, info *debug.BuildInfo) buildInfo {
	b := buildInfo{Version: ldVersion}
	if info == nil {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
			if len(b.Revision) > 12 {
				b.Revision = b.Revision[:12]
			}
		case "vcs.time":
			b.Time = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// String is the short form used in banners.
func (b buildInfo) String() string {
	if b.Revision == "" {
		return b.Version
	}
	s := b.Version + " (" + b.Revision
	if b.Modified {
		s += "-dirty"
	}
	return s + ")"
}

func writeVersion(w io.Writer, b buildInfo) {
	fmt.Fprintf(w, "wafwatch %s\n", b.Version)
	if b.Revision != "" {
		rev := b.Revision
		if b.Modified {
			rev += " (modified)"
		}
		fmt.Fprintf(w, "  commit: %s\n", rev)
	}
	if b.Time != "" {
		fmt.Fprintf(w, "  built:  %s\n", b.Time)
	}
	fmt.Fprintf(w, "  go:     %s\n", runtime.Version())
	fmt.Fprintf(w, "  os:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			writeVersion(cmd.OutOrStdout(), readBuildInfo())
		},
	}
}
