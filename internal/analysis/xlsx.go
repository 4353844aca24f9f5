package analysis

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// readXLSXRows returns the cell text of one worksheet, header row first.
// If sheetName is empty the 1-based sheetIndex selects the sheet.
func readXLSXRows(filePath, sheetName string, sheetIndex int) ([][]string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()

	var wb workbookXML
	if err := decodeZipXML(&zr.Reader, "xl/workbook.xml", &wb); err != nil {
		return nil, err
	}
	var rels relationshipsXML
	_ = decodeZipXML(&zr.Reader, "xl/_rels/workbook.xml.rels", &rels)
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = r.Target
	}

	target, err := resolveSheet(wb, targets, sheetName, sheetIndex)
	if err != nil {
		return nil, err
	}
	var sst sharedStringsXML
	_ = decodeZipXML(&zr.Reader, "xl/sharedStrings.xml", &sst)
	shared := sst.strings()

	f := findZipFile(&zr.Reader, target)
	if f == nil {
		return nil, fmt.Errorf("worksheet %s missing from archive", target)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open worksheet: %w", err)
	}
	defer rc.Close()
	return readSheetRows(rc, shared)
}

type workbookXML struct {
	Sheets []struct {
		Name    string `xml:"name,attr"`
		SheetID int    `xml:"sheetId,attr"`
		RID     string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type relationshipsXML struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type sharedStringsXML struct {
	Items []struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

func (s sharedStringsXML) strings() []string {
	out := make([]string, len(s.Items))
	for i, si := range s.Items {
		if len(si.Runs) == 0 {
			out[i] = si.T
			continue
		}
		var b strings.Builder
		for _, r := range si.Runs {
			b.WriteString(r.T)
		}
		out[i] = b.String()
	}
	return out
}

type rowXML struct {
	Cells []struct {
		Ref    string `xml:"r,attr"`
		Type   string `xml:"t,attr"`
		Value  string `xml:"v"`
		Inline struct {
			T string `xml:"t"`
		} `xml:"is"`
	} `xml:"c"`
}

func resolveSheet(wb workbookXML, targets map[string]string, sheetName string, sheetIndex int) (string, error) {
	if sheetName != "" {
		names := make([]string, 0, len(wb.Sheets))
		for _, s := range wb.Sheets {
			if strings.EqualFold(s.Name, sheetName) {
				if t, ok := targets[s.RID]; ok {
					return normalizeRelPath(t), nil
				}
			}
			names = append(names, s.Name)
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", sheetName, strings.Join(names, ", "))
	}
	idx := sheetIndex
	if idx <= 0 {
		idx = 1
	}
	for _, s := range wb.Sheets {
		if s.SheetID == idx {
			if t, ok := targets[s.RID]; ok {
				return normalizeRelPath(t), nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", idx), nil
}

// readSheetRows streams <row> elements; blank rows are skipped.
func readSheetRows(r io.Reader, shared []string) ([][]string, error) {
	dec := xml.NewDecoder(r)
	var rows [][]string
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rows, nil
			}
			return nil, fmt.Errorf("read worksheet: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		var rx rowXML
		if err := dec.DecodeElement(&rx, &se); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", len(rows)+1, err)
		}
		var row []string
		blank := true
		for pos, c := range rx.Cells {
			col := pos
			if c.Ref != "" {
				col = colIndexFromRef(c.Ref)
			}
			if col < 0 {
				continue
			}
			for len(row) <= col {
				row = append(row, "")
			}
			v := c.Value
			switch c.Type {
			case "s":
				if i := atoiSafe(v); i >= 0 && i < len(shared) {
					v = shared[i]
				} else {
					v = ""
				}
			case "inlineStr":
				v = c.Inline.T
			}
			row[col] = v
			if strings.TrimSpace(v) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
}

func decodeZipXML(zr *zip.Reader, name string, v any) error {
	f := findZipFile(zr, name)
	if f == nil {
		return fmt.Errorf("%s missing from archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// colIndexFromRef converts a cell reference like "C12" to a 0-based column.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship targets ("/xl/worksheets/sheet1.xml",
// "worksheets/sheet1.xml") to archive entry names.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
