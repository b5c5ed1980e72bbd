package parse

import (
	"path"
	"strings"

	"fuzzforge/internal/types"
)

// fuzzingRoot is where codeforge places build artifacts, relative to
// the workspace.
const fuzzingRoot = ".codeforge/fuzzing"

// Build parses build-fuzz-tests output against the targets that were
// requested. A failure marker takes its detail from the next non-empty
// non-marker line; when the whole invocation died without emitting any
// marker at all, one synthetic failure covering every requested target
// carries stderr so nothing fails silently.
func Build(stdout, stderr string, exitCode int, requested []types.Target) (types.BuildResult, []string) {
	presetOf := make(map[string]string, len(requested))
	for _, t := range requested {
		presetOf[t.Fuzzer] = t.Preset
	}

	var result types.BuildResult
	var unparsed []string

	all := lines(stdout)
	for i := 0; i < len(all); i++ {
		line := all[i]
		switch {
		case line == "":

		case strings.HasPrefix(line, markerBuilt):
			name := strings.TrimSpace(strings.TrimPrefix(line, markerBuilt))
			if name == "" {
				unparsed = append(unparsed, line)
				continue
			}
			result.BuiltTargets = append(result.BuiltTargets, types.BuiltTarget{
				Name:   name,
				Preset: presetOf[name],
				Path:   path.Join(fuzzingRoot, name),
			})

		case strings.HasPrefix(line, markerBuildFail):
			name := strings.TrimSpace(strings.TrimPrefix(line, markerBuildFail))
			if name == "" {
				unparsed = append(unparsed, line)
				continue
			}
			detail, consumed := failureDetail(all, i+1)
			if detail == "" {
				detail = "build failed for target " + name
			}
			result.Failures = append(result.Failures, types.BuildFailure{
				Preset:   presetOf[name],
				Target:   name,
				RawError: detail,
			})
			i += consumed

		default:
			unparsed = append(unparsed, line)
		}
	}

	// Nothing parsed at all and the process died with diagnostics on
	// stderr: one synthetic failure covering every requested target.
	if len(result.BuiltTargets) == 0 && len(result.Failures) == 0 && exitCode != 0 {
		if detail := strings.TrimSpace(stderr); detail != "" {
			result.Failures = append(result.Failures, types.BuildFailure{
				Target:   types.JoinTargets(requested),
				RawError: detail,
			})
		}
	}

	result.BuiltCount = len(result.BuiltTargets)
	return result, unparsed
}

// failureDetail looks ahead from idx for the first non-empty line. A
// marker line is never consumed as detail.
func failureDetail(all []string, idx int) (detail string, consumed int) {
	for j := idx; j < len(all); j++ {
		line := all[j]
		if line == "" {
			continue
		}
		if isMarker(line) {
			return "", 0
		}
		return line, j - idx + 1
	}
	return "", 0
}
