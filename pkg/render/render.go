// Package render turns a resolved SpriteRecord into CSS: the rule that sets
// the sprite as background image and the vertical background position of
// each item.
package render

import (
	"fmt"
	"strings"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
)

// Position is the vertical background position of one item, in percent of
// the scrollable sprite height.
type Position struct {
	ItemID  int64
	Offset  int
	Percent float64
}

func (p Position) String() string {
	return fmt.Sprintf("%.3f%%", p.Percent)
}

// Declaration returns the CSS declaration that shows the item.
func (p Position) Declaration() string {
	return "background-position: 0 " + p.String()
}

// DefaultClass is the selector class used when none is given.
func DefaultClass(rec types.SpriteRecord) string {
	return "sprite-" + rec.Hash.String()
}

// BackgroundImageStyle returns `.<class> { background-image: url("<url>"); }`.
// The class is escaped as a CSS identifier and the URL as a CSS string, so
// neither can end the rule or the surrounding style element.
func BackgroundImageStyle(rec types.SpriteRecord, class string) string {
	if class == "" {
		class = DefaultClass(rec)
	}
	return fmt.Sprintf(".%s { background-image: url(%s); }",
		cssIdent(class), cssString(rec.ImageURL))
}

// cssIdent escapes every rune outside [A-Za-z0-9_-] and a leading digit.
func cssIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9' && i == 0:
			fmt.Fprintf(&b, "\\%x ", r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f || r == '<' || r == '>':
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cssString quotes s as a double-quoted CSS string.
func cssString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f || r == '<' || r == '>':
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func StyleTag(rec types.SpriteRecord, class string) string {
	return "<style>" + BackgroundImageStyle(rec, class) + "</style>"
}

// BackgroundPosition locates itemID in the sprite. Percentages are relative
// to the sprite height minus the height of the last slice, which is how
// browsers resolve percentage background positions.
func BackgroundPosition(rec types.SpriteRecord, itemID int64) (Position, error) {
	entry, ok := rec.Entry(itemID)
	if !ok {
		return Position{}, types.NewSpriteError(types.NotFoundError, rec.Hash, itemID, rec.SizeVariant,
			fmt.Errorf("item %d is not part of the sprite", itemID))
	}

	pos := Position{ItemID: itemID, Offset: entry.Offset}
	last, _ := rec.LastEntry()
	denominator := rec.ImageHeight - last.Height
	if denominator <= 0 {
		return pos, nil
	}
	pos.Percent = 100 * float64(entry.Offset) / float64(denominator)
	return pos, nil
}

// Positions returns the position of every item in composition order.
func Positions(rec types.SpriteRecord) []Position {
	positions := make([]Position, 0, len(rec.Items))
	for _, e := range rec.Items {
		pos, err := BackgroundPosition(rec, e.SourceItemID)
		if err != nil {
			continue
		}
		positions = append(positions, pos)
	}
	return positions
}
