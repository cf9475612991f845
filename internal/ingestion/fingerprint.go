package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// Stack frame shapes the normalizer understands. Anything else participates
// in the fingerprint as its address-stripped trimmed text, so unknown runtimes
// still group deterministically.
var (
	// hexAddressPattern matches memory addresses like 0x7f3a92c01de0.
	hexAddressPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

	// jsFramePattern matches V8-style frames: "at fnName (file.js:10:5)".
	jsFramePattern = regexp.MustCompile(`^at\s+(.+?)\s+\((.+?):(\d+)(?::\d+)?\)$`)

	// pyFramePattern matches CPython-style frames: `File "app.py", line 10, in handler`.
	pyFramePattern = regexp.MustCompile(`^File\s+"(.+?)",\s+line\s+(\d+),\s+in\s+(.+)$`)

	// goFramePattern matches Go-style location lines: "/src/main.go:42 +0x1f"
	// (the preceding function line matches none of the patterns and is kept as text).
	goFramePattern = regexp.MustCompile(`^(.+?\.\w+):(\d+)(?:\s.*)?$`)
)

// Fingerprint computes the stable grouping hash for an event.
//
// The hash covers project_id, message, environment, level and the normalized
// stack trace, in that fixed order, joined with newlines. Incidental fields
// (timestamp, user identity, IP, URL, tags, extra) never participate, so two
// occurrences of the same defect always collide. The algorithm is frozen:
// changing it would split every existing issue into a new one.
func Fingerprint(event *ErrorEvent) string {
	parts := []string{
		event.ProjectID,
		event.Message,
		event.Environment,
		string(event.Level),
	}

	if event.StackTrace != "" {
		parts = append(parts, normalizeStackTrace(event.StackTrace)...)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))

	return hex.EncodeToString(sum[:])
}

// normalizeStackTrace reduces a raw stack trace to a canonical frame list.
//
// Each recognized frame contributes "file:function:line"; memory addresses
// are stripped everywhere so ASLR does not fragment issues. Blank lines are
// dropped. Unrecognized lines survive as trimmed, address-stripped text.
func normalizeStackTrace(stackTrace string) []string {
	lines := strings.Split(stackTrace, "\n")
	frames := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		line = hexAddressPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		frames = append(frames, normalizeFrame(line))
	}

	return frames
}

// normalizeFrame canonicalizes a single stack line to file:function:line
// where the shape is recognized, or returns the line unchanged.
func normalizeFrame(line string) string {
	if m := jsFramePattern.FindStringSubmatch(line); m != nil {
		return canonicalFrame(m[2], m[1], m[3])
	}

	if m := pyFramePattern.FindStringSubmatch(line); m != nil {
		return canonicalFrame(m[1], m[3], m[2])
	}

	if m := goFramePattern.FindStringSubmatch(line); m != nil {
		return canonicalFrame(m[1], "", m[2])
	}

	return line
}

// canonicalFrame renders the canonical file:function:line representation.
// The line number round-trips through strconv so "007" and "7" agree.
func canonicalFrame(file, function, line string) string {
	if n, err := strconv.Atoi(line); err == nil {
		line = strconv.Itoa(n)
	}

	return file + ":" + function + ":" + line
}
