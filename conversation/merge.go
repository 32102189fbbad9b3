package conversation

import (
	"cmp"
	"slices"
)

// Merge reconciles a cached conversation with a page fetched from the
// server. Server messages always win: a cached entry matching one by id,
// temp id, or (for a still-pending provisional) identical sender, content
// and conversation is replaced by the server copy. Server-only messages are
// added and cached entries the page does not mention are kept. The result is
// ordered by CreatedAt and holds no duplicate ids. Neither input is modified.
func Merge(cached, server []Message) []Message {
	out := make([]Message, 0, len(cached)+len(server))
	used := make([]bool, len(cached))

	byID := make(map[string]int, len(cached))
	byTemp := make(map[string]int, len(cached))
	for i, m := range cached {
		if m.ID != "" {
			if _, dup := byID[m.ID]; !dup {
				byID[m.ID] = i
			}
		}
		if m.TempID != "" {
			if _, dup := byTemp[m.TempID]; !dup {
				byTemp[m.TempID] = i
			}
		}
	}

	seen := make(map[string]bool, len(server))
	for _, s := range server {
		if s.ID != "" && seen[s.ID] {
			continue
		}
		idx := -1
		if i, ok := byID[s.ID]; ok && s.ID != "" && !used[i] {
			idx = i
		} else if i, ok := byTemp[s.TempID]; ok && s.TempID != "" && !used[i] {
			idx = i
		} else {
			idx = equivalent(cached, used, s)
		}
		if idx >= 0 {
			used[idx] = true
			if s.TempID == "" {
				s.TempID = cached[idx].TempID
			}
		}
		s.IsPending = false
		s.IsFromServer = true
		seen[s.ID] = true
		out = append(out, s)
	}

	for i, m := range cached {
		if used[i] || (m.ID != "" && seen[m.ID]) {
			continue
		}
		if m.ID != "" {
			seen[m.ID] = true
		}
		out = append(out, m)
	}

	sortMessages(out)
	return out
}

// equivalent finds an unused pending cached message that s confirms. A
// provisional created while signed out has no sender yet and matches any.
func equivalent(cached []Message, used []bool, s Message) int {
	for i, m := range cached {
		if used[i] || !m.IsPending {
			continue
		}
		if (m.SenderID == "" || m.SenderID == s.SenderID) && m.Content == s.Content &&
			m.RecipientID == s.RecipientID && m.GroupID == s.GroupID {
			return i
		}
	}
	return -1
}

// upsert replaces the entry sharing m's temp id or id, or appends m. Any
// other entry carrying the same id is dropped.
func upsert(ms []Message, m Message) []Message {
	out := make([]Message, 0, len(ms)+1)
	placed := false
	for _, cur := range ms {
		match := (m.TempID != "" && cur.TempID == m.TempID) || (m.ID != "" && cur.ID == m.ID)
		if !match {
			out = append(out, cur)
			continue
		}
		if !placed {
			if m.TempID == "" {
				m.TempID = cur.TempID
			}
			out = append(out, m)
			placed = true
		}
	}
	if !placed {
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

func sortMessages(ms []Message) {
	slices.SortStableFunc(ms, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID == "" || b.ID == "" {
			return 0
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
