package reconcile

import (
	"sort"
	"strings"

	"github.com/psaab/edgecfg/pkg/config"
)

// Result is the outcome of reconciling a candidate against live config.
type Result struct {
	// Updates are the statements to apply, in order: every candidate
	// delete first, then the set statements that are missing on the
	// device or would be removed by one of those deletes.
	Updates []string `json:"updates"`

	// Unmanaged are live statements with no matching candidate statement
	// that no pending update touches. Sorted.
	Unmanaged []string `json:"unmanaged"`

	// Invalid are candidate lines that are neither set nor delete. Sorted.
	Invalid []string `json:"invalid"`
}

// Reconcile diffs candidate statements against the device's active
// configuration text. It performs no I/O and never fails; lines it cannot
// interpret are reported in Result.Invalid.
func Reconcile(candidate []string, live string) Result {
	liveLines := ParseLive(live)
	liveSet := make(map[string]bool, len(liveLines))
	for _, line := range liveLines {
		liveSet[line] = true
	}

	var sets, deletes, invalid []string
	for _, raw := range candidate {
		line := Clean(raw)
		if line == "" {
			continue
		}
		switch Classify(line) {
		case KindDelete:
			deletes = append(deletes, line)
		case KindSet:
			sets = append(sets, line)
		default:
			invalid = append(invalid, line)
		}
	}

	var u updateList

	// Deletes run first so a reset of a subtree happens before anything
	// is added back into it.
	for _, line := range deletes {
		u.add(line)
	}

	for _, line := range sets {
		if !liveSet[line] {
			u.add(line)
		}
	}

	// A set statement under a path being deleted has to be re-applied
	// even when the device already has it.
	if len(deletes) > 0 {
		for _, line := range sets {
			if isUnderDelete(line, deletes) {
				u.add(line)
			}
		}
	}

	wanted := make(map[string]bool, len(sets))
	for _, line := range sets {
		wanted[line] = true
	}
	seen := make(map[string]bool, len(liveLines))
	var unmanaged []string
	for _, line := range liveLines {
		if wanted[line] || seen[line] {
			continue
		}
		seen[line] = true
		if u.covers(line) {
			continue
		}
		unmanaged = append(unmanaged, line)
	}

	sort.Strings(unmanaged)
	sort.Strings(invalid)

	return Result{
		Updates:   u.lines,
		Unmanaged: unmanaged,
		Invalid:   invalid,
	}
}

// PromoteUnmanaged turns every unmanaged statement into a delete and
// appends it to updates.
func PromoteUnmanaged(updates, unmanaged []string) []string {
	for _, line := range unmanaged {
		updates = append(updates, ToDelete(line))
	}
	return updates
}

// updateList is an ordered list of statements without duplicates; the
// first occurrence keeps its position.
type updateList struct {
	lines []string
	index map[string]bool
}

func (u *updateList) add(line string) {
	if u.index == nil {
		u.index = make(map[string]bool)
	}
	if u.index[line] {
		return
	}
	u.index[line] = true
	u.lines = append(u.lines, line)
}

// covers reports whether a pending update subsumes the live line.
func (u *updateList) covers(line string) bool {
	for _, update := range u.lines {
		if isSubsumedBy(line, update) {
			return true
		}
	}
	return false
}

// isUnderDelete reports whether the delete form of a set statement falls
// under any of the delete statements.
func isUnderDelete(set string, deletes []string) bool {
	search := ToDelete(set)
	for _, d := range deletes {
		if config.IsPrefixPath(d, search) {
			return true
		}
	}
	return false
}

// isSubsumedBy reports whether update already changes the path of a live
// line. Either the update starts with the line minus its final word,
// verb included ("set system host-name" for a new host name), or the
// update deletes a path the line lives under.
func isSubsumedBy(line, update string) bool {
	if strings.HasPrefix(update, searchKey(line)) {
		return true
	}
	return Classify(update) == KindDelete && config.IsPrefixPath(path(update), path(line))
}
