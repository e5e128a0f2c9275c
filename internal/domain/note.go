package domain

import "strings"

// LeechTag marks notes with a card that keeps lapsing.
const LeechTag = "leech"

// Note is the owner of one or more sibling cards. Only its tags matter here.
type Note struct {
	ID   int64  `db:"id"`
	Tags string `db:"tags"`
	Mod  int64  `db:"mod"`
}

// TagList splits the stored tag string.
func (n *Note) TagList() []string {
	return strings.Fields(n.Tags)
}

// HasTag matches case-insensitively.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.TagList() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag returns false if the tag was already present.
func (n *Note) AddTag(tag string) bool {
	if n.HasTag(tag) {
		return false
	}
	n.Tags = strings.Join(append(n.TagList(), tag), " ")
	return true
}

// RemoveTag returns false if the tag was absent.
func (n *Note) RemoveTag(tag string) bool {
	tags := n.TagList()
	kept := tags[:0]
	for _, t := range tags {
		if !strings.EqualFold(t, tag) {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tags) {
		return false
	}
	n.Tags = strings.Join(kept, " ")
	return true
}
