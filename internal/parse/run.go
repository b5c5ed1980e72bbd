package parse

import (
	"path"
	"strings"
	"time"

	"fuzzforge/internal/proc"
	"fuzzforge/internal/types"
)

// CrashDirSuffix marks the directory that names the owning fuzzer:
// crashes for fuzzA land under ".../fuzzA-output/".
const CrashDirSuffix = "-output"

// Run parses run-fuzz-tests output. Paths in the markers are container
// paths; crash records keep both the full path and the slice under the
// workspace mount. When the process exits non-zero without flagging any
// fuzzer, stderr becomes a single generic execution error.
func Run(stdout, stderr string, exitCode int) (types.RunResult, []string) {
	var result types.RunResult
	var unparsed []string
	seen := make(map[string]bool)
	now := time.Now()

	for _, line := range lines(stdout) {
		switch {
		case line == "":

		case strings.HasPrefix(line, markerRunning):
			p := strings.TrimSpace(strings.TrimPrefix(line, markerRunning))
			name := path.Base(p)
			if name == "" || name == "." || name == "/" {
				unparsed = append(unparsed, line)
				continue
			}
			if !seen[name] {
				seen[name] = true
				result.Executed = append(result.Executed, name)
			}

		case strings.HasPrefix(line, markerCrashFound):
			p := strings.TrimSpace(strings.TrimPrefix(line, markerCrashFound))
			if p == "" {
				unparsed = append(unparsed, line)
				continue
			}
			result.Crashes = append(result.Crashes, types.CrashRecord{
				Fuzzer:       CrashOwner(p),
				Path:         p,
				RelPath:      strings.TrimPrefix(p, proc.ContainerWorkdir+"/"),
				DiscoveredAt: now,
			})

		case strings.HasPrefix(line, markerRunErrPre) && strings.HasSuffix(line, markerRunErrSuf):
			p := strings.TrimSuffix(strings.TrimPrefix(line, markerRunErrPre), markerRunErrSuf)
			p = strings.TrimSpace(p)
			if p == "" {
				unparsed = append(unparsed, line)
				continue
			}
			result.ExecutionErrors = append(result.ExecutionErrors, types.ExecutionError{
				Fuzzer:  path.Base(p),
				Message: "encountered errors during execution",
			})

		default:
			unparsed = append(unparsed, line)
		}
	}

	if len(result.ExecutionErrors) == 0 && exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = "run process exited without output"
		}
		result.ExecutionErrors = append(result.ExecutionErrors, types.ExecutionError{Message: msg})
	}

	result.ExecutedCount = len(result.Executed)
	return result, unparsed
}

// CrashOwner walks a slash-separated crash path for the
// "<fuzzer>-output" directory segment. A crash that sits outside such
// a directory stays in the results with empty attribution rather than
// being dropped.
func CrashOwner(crashPath string) string {
	dir := path.Dir(crashPath)
	for dir != "/" && dir != "." {
		base := path.Base(dir)
		if strings.HasSuffix(base, CrashDirSuffix) && len(base) > len(CrashDirSuffix) {
			return strings.TrimSuffix(base, CrashDirSuffix)
		}
		dir = path.Dir(dir)
	}
	return ""
}
