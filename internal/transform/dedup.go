package transform

// Deduper tracks identity keys across a scan so later duplicates are
// dropped. First occurrence wins relative to input order. Records carrying
// neither identifier always pass: a missed duplicate is preferred over
// merging two genuinely different unidentified books.
type Deduper struct {
	seenExternalIDs map[string]struct{}
	seenISBN13s     map[string]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{
		seenExternalIDs: make(map[string]struct{}),
		seenISBN13s:     make(map[string]struct{}),
	}
}

// Admit reports whether the record is first of its identity, registering its
// keys when it is.
func (d *Deduper) Admit(c *Canonical) bool {
	if c.ExternalID != "" {
		if _, dup := d.seenExternalIDs[c.ExternalID]; dup {
			return false
		}
	}
	if c.ISBN13 != "" {
		if _, dup := d.seenISBN13s[c.ISBN13]; dup {
			return false
		}
	}

	if c.ExternalID != "" {
		d.seenExternalIDs[c.ExternalID] = struct{}{}
	}
	if c.ISBN13 != "" {
		d.seenISBN13s[c.ISBN13] = struct{}{}
	}
	return true
}
