package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Register column headers, as exported by the OPAC.
const (
	colAccession = "Acc. No."
	colTitle     = "Title"
	colAuthor    = "Author/Editor"
	colEdition   = "Ed./Vol."
	colPublisher = "Place & Publisher"
	colBookNo    = "Class No./Book No."
)

// Row is one physical accession from the register. Rows are append-only:
// sync runs add new accessions but never rewrite existing ones.
type Row struct {
	Accession string
	Title     string
	Author    string
	Edition   string
	Publisher string
	BookNo    string
}

// LocalMeta is the side-table slice of a row merged into canonical records.
type LocalMeta struct {
	EditionVolume string
	PublisherInfo string
	BookNo        string
}

// CleanText collapses whitespace and strips stray punctuation the register
// carries on titles and author names.
func CleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, ".,/:;")
}

// ReadRegister loads the accession register CSV. Rows with an empty
// accession number are skipped.
func ReadRegister(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening register: %w", err)
	}
	defer f.Close()

	return parseRegister(f)
}

func parseRegister(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading register header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	if _, ok := idx[colAccession]; !ok {
		return nil, fmt.Errorf("register missing %q column", colAccession)
	}

	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading register row: %w", err)
		}
		acc := field(rec, colAccession)
		if acc == "" {
			continue
		}
		rows = append(rows, Row{
			Accession: acc,
			Title:     field(rec, colTitle),
			Author:    field(rec, colAuthor),
			Edition:   field(rec, colEdition),
			Publisher: field(rec, colPublisher),
			BookNo:    field(rec, colBookNo),
		})
	}
	return rows, nil
}

// SideTable indexes register rows by accession number for the transform
// stage's local-metadata merge.
func SideTable(rows []Row) map[string]LocalMeta {
	m := make(map[string]LocalMeta, len(rows))
	for _, r := range rows {
		m[r.Accession] = LocalMeta{
			EditionVolume: r.Edition,
			PublisherInfo: r.Publisher,
			BookNo:        r.BookNo,
		}
	}
	return m
}

// AppendRows adds new accessions to the register, creating the file with a
// header if needed. Rows whose accession number already exists are dropped;
// the count of appended rows is returned.
func AppendRows(path string, rows []Row) (int, error) {
	existing := make(map[string]struct{})
	writeHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeHeader = true
	} else {
		current, err := ReadRegister(path)
		if err != nil {
			return 0, err
		}
		for _, r := range current {
			existing[r.Accession] = struct{}{}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening register for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{colAccession, colTitle, colAuthor, colEdition, colPublisher, colBookNo}); err != nil {
			return 0, err
		}
	}

	added := 0
	for _, r := range rows {
		if r.Accession == "" {
			continue
		}
		if _, dup := existing[r.Accession]; dup {
			continue
		}
		existing[r.Accession] = struct{}{}
		if err := w.Write([]string{r.Accession, r.Title, r.Author, r.Edition, r.Publisher, r.BookNo}); err != nil {
			return added, err
		}
		added++
	}
	w.Flush()
	return added, w.Error()
}
