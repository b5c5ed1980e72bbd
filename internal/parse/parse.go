// Package parse turns raw codeforge output into structured records.
// Parsers are total: they never fail, they classify. Anything that is
// not a recognized marker line comes back in the unparsed slice so
// callers can decide whether it matters.
package parse

import (
	"bufio"
	"strings"
)

// Marker lines emitted by the codeforge CLI. These are a fixed external
// contract; the prefixes match byte for byte.
const (
	markerBuilt      = "[+] built fuzzer: "
	markerBuildFail  = "[!] Failed to build target "
	markerRunning    = "[+] running fuzzer: "
	markerCrashFound = "[+] Found crash file: "
	markerRunErrPre  = "[+] fuzzer "
	markerRunErrSuf  = " encountered errors!"
)

func isMarker(line string) bool {
	return strings.HasPrefix(line, "[+]") || strings.HasPrefix(line, "[!]")
}

// lines splits raw process output into trimmed lines.
func lines(raw string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		out = append(out, strings.TrimSpace(scanner.Text()))
	}
	return out
}
