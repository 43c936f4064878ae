package pipeline

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// Slot is a named input position.
type Slot string

// SlotMain is the image cut into quadrants.
const SlotMain Slot = "main"

// HeaderSlot returns the header slot of tag, e.g. "header-tl".
func HeaderSlot(tag split.Tag) Slot { return Slot("header-" + tag.String()) }

// FooterSlot returns the footer slot of tag, e.g. "footer-tl".
func FooterSlot(tag split.Tag) Slot { return Slot("footer-" + tag.String()) }

// Slots lists every slot in positional order: main, the four headers, then
// the four footers, each group in TL, TR, BL, BR order.
var Slots = func() [9]Slot {
	var s [9]Slot
	s[0] = SlotMain
	for i, tag := range split.Tags {
		s[1+i] = HeaderSlot(tag)
		s[5+i] = FooterSlot(tag)
	}
	return s
}()

func validSlot(s Slot) bool {
	for _, known := range Slots {
		if s == known {
			return true
		}
	}
	return false
}

// SlotAssignment maps every slot to an input reference understood by the
// Resolver (a blob key, a file path ...).
type SlotAssignment map[Slot]string

// Validate reports every unassigned slot as ErrNotFound and rejects slot
// names it does not know.
func (a SlotAssignment) Validate() error {
	var unknown []string
	for s := range a {
		if !validSlot(s) {
			unknown = append(unknown, string(s))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.Errorf("unknown slots: %s", strings.Join(unknown, ", "))
	}

	var missing []string
	for _, s := range Slots {
		if strings.TrimSpace(a[s]) == "" {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrNotFound, "unassigned slots: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Positional builds an assignment from exactly nine references in Slots
// order.
func Positional(refs []string) (SlotAssignment, error) {
	if len(refs) < len(Slots) {
		return nil, errors.Wrapf(ErrNotFound, "need %d inputs, got %d", len(Slots), len(refs))
	}
	if len(refs) > len(Slots) {
		return nil, errors.Errorf("need %d inputs, got %d", len(Slots), len(refs))
	}
	a := make(SlotAssignment, len(Slots))
	for i, s := range Slots {
		a[s] = refs[i]
	}
	return a, nil
}

// ByName builds an assignment from references whose base names, without
// extension, are slot names ("job/header-tl.png"). ok is false unless all
// nine slots are named exactly once.
func ByName(refs []string) (a SlotAssignment, ok bool) {
	if len(refs) != len(Slots) {
		return nil, false
	}
	a = make(SlotAssignment, len(Slots))
	for _, ref := range refs {
		base := filepath.Base(ref)
		s := Slot(strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base))))
		if !validSlot(s) {
			return nil, false
		}
		if _, dup := a[s]; dup {
			return nil, false
		}
		a[s] = ref
	}
	return a, true
}
