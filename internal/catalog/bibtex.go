package catalog

import (
	"bufio"
	"bytes"
	"strings"
)

// ParseBibTeX extracts register rows from a Koha BibTeX shelf export. The
// entry key is the accession number; only title and author are carried (the
// export has no edition or shelving fields). The parser handles the flat,
// one-field-per-line shape Koha emits and ignores anything it cannot read.
func ParseBibTeX(data []byte) ([]Row, error) {
	var rows []Row
	var cur *Row

	flush := func() {
		if cur != nil && cur.Accession != "" {
			rows = append(rows, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "@") {
			flush()
			open := strings.IndexByte(line, '{')
			if open < 0 {
				continue
			}
			key := strings.TrimSuffix(strings.TrimSpace(line[open+1:]), ",")
			cur = &Row{Accession: key}
			continue
		}

		if cur == nil {
			continue
		}
		if line == "}" {
			flush()
			continue
		}

		name, value, ok := splitBibField(line)
		if !ok {
			continue
		}
		switch strings.ToLower(name) {
		case "title":
			cur.Title = CleanText(value)
		case "author", "editor":
			if cur.Author == "" {
				cur.Author = CleanText(value)
			}
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteBibTeX renders register rows back out as BibTeX book entries, one per
// accession number. It is the inverse of ParseBibTeX modulo whitespace.
func WriteBibTeX(rows []Row) []byte {
	var buf bytes.Buffer
	for _, r := range rows {
		if r.Accession == "" {
			continue
		}
		buf.WriteString("@book{" + r.Accession + ",\n")
		writeBibField(&buf, "title", r.Title)
		writeBibField(&buf, "author", r.Author)
		writeBibField(&buf, "edition", r.Edition)
		writeBibField(&buf, "publisher", r.Publisher)
		writeBibField(&buf, "note", r.BookNo)
		buf.WriteString("}\n\n")
	}
	return buf.Bytes()
}

func writeBibField(buf *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	buf.WriteString("\t" + name + " = {" + value + "},\n")
}

func splitBibField(line string) (name, value string, ok bool) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:eq])
	value = strings.TrimSpace(line[eq+1:])
	value = strings.TrimSuffix(value, ",")
	value = strings.Trim(value, "{}\"")
	return name, strings.TrimSpace(value), name != ""
}
