package state

import "glassy-social/internal/docstore"

func clone(s State) State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.ReplyTo != nil {
		r := *s.ReplyTo
		out.ReplyTo = &r
	}
	if s.Posts != nil {
		out.Posts = append([]docstore.Post(nil), s.Posts...)
	}
	out.Reactions = make(map[string]ReactionSummary, len(s.Reactions))
	for id, sum := range s.Reactions {
		counts := make(map[string]int, len(sum.Counts))
		for k, v := range sum.Counts {
			counts[k] = v
		}
		out.Reactions[id] = ReactionSummary{Counts: counts, Mine: sum.Mine}
	}
	out.Comments = make(map[string][]docstore.Comment, len(s.Comments))
	for id, list := range s.Comments {
		out.Comments[id] = append([]docstore.Comment(nil), list...)
	}
	if s.Messages != nil {
		out.Messages = make([]docstore.ChatMessage, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = cloneMessage(m)
		}
	}
	out.Profiles = make(map[string]Profile, len(s.Profiles))
	for id, p := range s.Profiles {
		if p.User != nil {
			u := cloneUser(*p.User)
			p.User = &u
		}
		out.Profiles[id] = p
	}
	return out
}

func cloneMessage(m docstore.ChatMessage) docstore.ChatMessage {
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	if m.ReadBy != nil {
		rb := make(map[string]bool, len(m.ReadBy))
		for k, v := range m.ReadBy {
			rb[k] = v
		}
		m.ReadBy = rb
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	return m
}

func cloneUser(u docstore.User) docstore.User {
	u.Following = append([]string(nil), u.Following...)
	u.Followers = append([]string(nil), u.Followers...)
	return u
}
