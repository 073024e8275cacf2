// Package badge computes the shell-wide unread indicator from the
// per-server badges reported by each session.
package badge

import (
	"strconv"

	"github.com/parley-im/parley/internal/eventbus"
)

// Aggregate folds per-server badges into the global indicator. Counted
// badges sum into a mention count; when nothing is counted but some server
// still signals unread activity the result is a bare dot.
func Aggregate(badges map[string]eventbus.Badge) eventbus.GlobalBadgeEvent {
	total := 0
	counted := false
	unread := false

	for _, b := range badges {
		if b.HasCount {
			total += b.Count
			counted = true
		}
		if b.Unread() {
			unread = true
		}
	}

	event := eventbus.GlobalBadgeEvent{
		HasUnread: unread,
	}
	if counted && total > 0 {
		event.MentionCount = total
		event.Text = strconv.Itoa(total)
	} else if unread {
		event.Text = "•"
	}
	return event
}
