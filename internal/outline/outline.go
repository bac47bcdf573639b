// Package outline models the bullet trees read from the editor layer and
// derives the disambiguated text used for embedding. Building is pure and
// deterministic: two calls on unchanged input produce byte-identical text,
// which is what the sync scheduler's change detection relies on.
package outline

import (
	"strings"
)

// DescriptorTag is a typed pseudo-category bullet used to disambiguate context.
type DescriptorTag string

const (
	DescriptorNone   DescriptorTag = ""
	DescriptorWhat   DescriptorTag = "What"
	DescriptorWhy    DescriptorTag = "Why"
	DescriptorHow    DescriptorTag = "How"
	DescriptorPros   DescriptorTag = "Pros"
	DescriptorCons   DescriptorTag = "Cons"
	DescriptorCustom DescriptorTag = "Custom"
)

// Bullet is a single node in a document's tree.
type Bullet struct {
	ID         string
	Text       string
	Descriptor DescriptorTag
	Children   []*Bullet
}

// Document is a bullet tree owned by a single user.
type Document struct {
	ID      string
	OwnerID string
	Title   string
	Bullets []*Bullet
}

const (
	maxAncestors      = 3
	maxChildSummaries = 5
	maxChildRunes     = 50
)

// BulletContext is the transient, derived context of one bullet. It is built
// fresh from the live tree and never persisted independently.
type BulletContext struct {
	Text string
	// Ancestors is ordered nearest-first and capped at maxAncestors.
	Ancestors  []string
	Descriptor DescriptorTag
	// ChildSummaries holds up to maxChildSummaries short strings, each
	// truncated to maxChildRunes runes.
	ChildSummaries []string
}

// ContextPath renders the ancestor chain as a human-readable path with the
// nearest ancestor last, e.g. "Vehicles > Tesla > Model 3".
func (c BulletContext) ContextPath() string {
	n := len(c.Ancestors)
	if n == 0 {
		return ""
	}
	parts := make([]string, n)
	for i, a := range c.Ancestors {
		parts[n-1-i] = a
	}
	return strings.Join(parts, " > ")
}

// ChildSummary joins the child summaries into a single string.
func (c BulletContext) ChildSummary() string {
	return strings.Join(c.ChildSummaries, ", ")
}

// BuildEmbeddingText composes the disambiguated blob sent to the embedding
// provider:
//
//	ancestor1 > ancestor2 > ancestor3 > [Tag] text | contains: child1, child2
//
// The descriptor prefix appears only when a tag is set, and the contains
// suffix only when the bullet has children.
func BuildEmbeddingText(c BulletContext) string {
	var b strings.Builder
	if path := c.ContextPath(); path != "" {
		b.WriteString(path)
		b.WriteString(" > ")
	}
	if c.Descriptor != DescriptorNone {
		b.WriteString("[")
		b.WriteString(string(c.Descriptor))
		b.WriteString("] ")
	}
	b.WriteString(c.Text)
	if len(c.ChildSummaries) > 0 {
		b.WriteString(" | contains: ")
		b.WriteString(strings.Join(c.ChildSummaries, ", "))
	}
	return b.String()
}

// BulletRef pairs a block ID with its derived context.
type BulletRef struct {
	BlockID string
	Context BulletContext
}

// Flatten walks the document depth-first and returns every bullet with its
// derived context, in document order.
func Flatten(doc *Document) []BulletRef {
	if doc == nil {
		return nil
	}
	var refs []BulletRef
	var walk func(b *Bullet, ancestors []string)
	walk = func(b *Bullet, ancestors []string) {
		refs = append(refs, BulletRef{BlockID: b.ID, Context: contextFor(b, ancestors)})
		childAncestors := append([]string{b.Text}, ancestors...)
		for _, ch := range b.Children {
			walk(ch, childAncestors)
		}
	}
	for _, root := range doc.Bullets {
		walk(root, nil)
	}
	return refs
}

// Find returns the context of the bullet with the given ID, or nil if the
// document does not contain it.
func Find(doc *Document, blockID string) *BulletContext {
	if doc == nil {
		return nil
	}
	var found *BulletContext
	var walk func(b *Bullet, ancestors []string) bool
	walk = func(b *Bullet, ancestors []string) bool {
		if b.ID == blockID {
			c := contextFor(b, ancestors)
			found = &c
			return true
		}
		childAncestors := append([]string{b.Text}, ancestors...)
		for _, ch := range b.Children {
			if walk(ch, childAncestors) {
				return true
			}
		}
		return false
	}
	for _, root := range doc.Bullets {
		if walk(root, nil) {
			break
		}
	}
	return found
}

// PlainText concatenates every bullet's text in document order, one line per
// bullet. This is what the auto-reorganization pipeline feeds to concept
// extraction.
func PlainText(doc *Document) string {
	var lines []string
	for _, ref := range Flatten(doc) {
		if ref.Context.Text != "" {
			lines = append(lines, ref.Context.Text)
		}
	}
	return strings.Join(lines, "\n")
}

func contextFor(b *Bullet, ancestors []string) BulletContext {
	c := BulletContext{
		Text:       b.Text,
		Descriptor: b.Descriptor,
	}
	n := len(ancestors)
	if n > maxAncestors {
		n = maxAncestors
	}
	if n > 0 {
		c.Ancestors = append([]string(nil), ancestors[:n]...)
	}
	for i, ch := range b.Children {
		if i == maxChildSummaries {
			break
		}
		c.ChildSummaries = append(c.ChildSummaries, truncateRunes(ch.Text, maxChildRunes))
	}
	return c
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
