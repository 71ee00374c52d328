package cli

import (
	"flag"
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables, assigned from main before dispatch.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// BuildInfo carries the ldflags-injected build identifiers.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// VersionOutput is the JSON output format for the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// RunVersion handles the version command.
func RunVersion(info BuildInfo, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := buildVersionOutput(info)
	if *jsonOutput {
		return outputJSON(out)
	}

	v := out.Version
	if len(v) > 0 && v[0] != 'v' && v != "dev" && v != "(devel)" {
		v = "v" + v
	}
	fmt.Printf("faultd %s (%s, %s)\n", v, out.Commit, out.Date)
	fmt.Printf("%s %s/%s\n", out.Go, out.OS, out.Arch)
	return nil
}

// buildVersionOutput fills gaps in the ldflags values from the embedded
// VCS build info when available.
func buildVersionOutput(info BuildInfo) VersionOutput {
	version := info.Version
	commit := info.Commit
	date := info.BuildDate

	if bi, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" {
			version = bi.Main.Version
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "none" {
					commit = setting.Value
				}
			case "vcs.time":
				if date == "unknown" {
					date = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					commit += "-dirty"
				}
			}
		}
	}

	return VersionOutput{
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}
