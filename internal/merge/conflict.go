package merge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// lanePriority encodes the "more-done wins" policy from spec §4.E: higher
// value wins a conflict; equal priority prefers ours.
var lanePriority = map[string]int{
	"done":        6,
	"for_review":  5,
	"in_progress": 4,
	"claimed":     3,
	"planned":     2,
	"blocked":     1,
	"canceled":    0,
}

var (
	conflictStart    = regexp.MustCompile(`^<{7}`)
	conflictMid      = regexp.MustCompile(`^={7}$`)
	conflictEnd      = regexp.MustCompile(`^>{7}`)
	laneLineRe       = regexp.MustCompile(`^(\s*lane:\s*)(\S+)\s*$`)
	checkboxLineRe   = regexp.MustCompile(`^(\s*-\s*\[)([ xX])(\]\s*.*)$`)
	historyHeaderRe  = regexp.MustCompile(`^(\s*history:\s*)$`)
	historyItemRe    = regexp.MustCompile(`^(\s*-\s*)(\{.*\}|\S.*)$`)
)

// conflictBlock is one <<<<<<< / ======= / >>>>>>> region.
type conflictBlock struct {
	ours   []string
	theirs []string
}

// ResolveStatusFileContent resolves every conflict marker block in
// content using the spec §4.E status-file rules. It returns the resolved
// content and ok=true only if every conflict block in the file was
// successfully classified and resolved; otherwise ok=false and the
// original content (with markers intact) is returned for human review.
func ResolveStatusFileContent(content string) (resolved string, ok bool) {
	lines := strings.Split(content, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		if conflictStart.MatchString(line) {
			block, next, perr := parseConflictBlock(lines, i)
			if perr != nil {
				return content, false
			}
			resolvedLines, rok := resolveBlock(block)
			if !rok {
				return content, false
			}
			out = append(out, resolvedLines...)
			i = next
			continue
		}
		out = append(out, line)
		i++
	}
	return strings.Join(out, "\n"), true
}

// parseConflictBlock reads one <<<<<<< ... ======= ... >>>>>>> region
// starting at lines[start], returning the block and the index just past
// the closing marker.
func parseConflictBlock(lines []string, start int) (conflictBlock, int, error) {
	var block conflictBlock
	i := start + 1
	for i < len(lines) && !conflictMid.MatchString(lines[i]) {
		block.ours = append(block.ours, lines[i])
		i++
	}
	if i >= len(lines) {
		return block, 0, fmt.Errorf("unterminated conflict block (missing =======)")
	}
	i++ // skip =======
	for i < len(lines) && !conflictEnd.MatchString(lines[i]) {
		block.theirs = append(block.theirs, lines[i])
		i++
	}
	if i >= len(lines) {
		return block, 0, fmt.Errorf("unterminated conflict block (missing >>>>>>>)")
	}
	i++ // skip >>>>>>>
	return block, i, nil
}

// resolveBlock classifies a conflict block as a lane field, checkbox
// lines, a history array, or unresolvable, and applies the matching rule.
func resolveBlock(b conflictBlock) ([]string, bool) {
	if resolved, ok := resolveLaneBlock(b); ok {
		return resolved, true
	}
	if resolved, ok := resolveCheckboxBlock(b); ok {
		return resolved, true
	}
	if resolved, ok := resolveHistoryBlock(b); ok {
		return resolved, true
	}
	return nil, false
}

func resolveLaneBlock(b conflictBlock) ([]string, bool) {
	if len(b.ours) != 1 || len(b.theirs) != 1 {
		return nil, false
	}
	oursM := laneLineRe.FindStringSubmatch(b.ours[0])
	theirsM := laneLineRe.FindStringSubmatch(b.theirs[0])
	if oursM == nil || theirsM == nil {
		return nil, false
	}
	oursLane, theirsLane := oursM[2], theirsM[2]
	oursPrio, oursKnown := lanePriority[oursLane]
	theirsPrio, theirsKnown := lanePriority[theirsLane]
	if !oursKnown || !theirsKnown {
		return nil, false
	}
	if theirsPrio > oursPrio {
		return []string{b.theirs[0]}, true
	}
	return []string{b.ours[0]}, true
}

func resolveCheckboxBlock(b conflictBlock) ([]string, bool) {
	if len(b.ours) != len(b.theirs) {
		return nil, false
	}
	var resolved []string
	for idx := range b.ours {
		om := checkboxLineRe.FindStringSubmatch(b.ours[idx])
		tm := checkboxLineRe.FindStringSubmatch(b.theirs[idx])
		if om == nil || tm == nil {
			return nil, false
		}
		checked := om[2] == "x" || om[2] == "X" || tm[2] == "x" || tm[2] == "X"
		mark := " "
		if checked {
			mark = "x"
		}
		resolved = append(resolved, om[1]+mark+om[3])
	}
	return resolved, true
}

// resolveHistoryBlock merges two conflicting history-array item lists:
// union by content, deduplicated, sorted by the leading ISO-ish timestamp
// token found in each entry (stable fallback: original relative order).
func resolveHistoryBlock(b conflictBlock) ([]string, bool) {
	if len(b.ours) == 0 && len(b.theirs) == 0 {
		return nil, false
	}
	for _, line := range append(append([]string{}, b.ours...), b.theirs...) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !historyItemRe.MatchString(line) {
			return nil, false
		}
	}

	seen := make(map[string]bool)
	var merged []string
	for _, line := range append(append([]string{}, b.ours...), b.theirs...) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		merged = append(merged, line)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return historyTimestamp(merged[i]) < historyTimestamp(merged[j])
	})
	return merged, true
}

var timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)

func historyTimestamp(line string) string {
	return timestampRe.FindString(line)
}

// IsRecognizedStatusPath reports whether path is one of the feature files
// eligible for auto-conflict-resolution: tasks.md or anything under
// tasks/.
func IsRecognizedStatusPath(path string) bool {
	return strings.HasSuffix(path, "tasks.md") || strings.Contains(path, "/tasks/") || strings.HasPrefix(path, "tasks/")
}
