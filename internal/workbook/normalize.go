package workbook

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

const transitionalMain = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"

// strictNamespaces maps ISO Strict OOXML namespace prefixes to their
// Transitional equivalents. Longest first so nested URIs are not split.
var strictNamespaces = []struct{ strict, transitional string }{
	{"http://purl.oclc.org/ooxml/officeDocument/relationships", "http://schemas.openxmlformats.org/officeDocument/2006/relationships"},
	{"http://purl.oclc.org/ooxml/spreadsheetml/main", transitionalMain},
	{"http://purl.oclc.org/ooxml/drawingml/main", "http://schemas.openxmlformats.org/drawingml/2006/main"},
	{"http://purl.oclc.org/ooxml/officeDocument/extendedProperties", "http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"},
}

var (
	prefixDeclRe = regexp.MustCompile(`xmlns:([A-Za-z][\w.-]*)="` + regexp.QuoteMeta(transitionalMain) + `"`)
	strikeValRe  = regexp.MustCompile(`<strike\s+val="(?:single|double|on)"\s*/>`)
)

// Normalize rewrites an xlsx package so exports from non-Excel producers load
// cleanly: Strict namespaces become Transitional, a prefixed SpreadsheetML
// namespace becomes the default namespace, and non-boolean strike values are
// reduced to <strike/>. Parts that need no change are copied byte for byte.
func Normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, eris.New("workbook: empty upload")
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "workbook: not an xlsx archive")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if err := copyPart(zw, f); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "workbook: finalize archive")
	}
	return buf.Bytes(), nil
}

func copyPart(zw *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "workbook: open part %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(rc)
	if err != nil {
		return eris.Wrapf(err, "workbook: read part %s", f.Name)
	}

	if isXMLPart(f.Name) {
		body = []byte(rewritePart(string(body)))
	}

	w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
	if err != nil {
		return eris.Wrapf(err, "workbook: create part %s", f.Name)
	}
	if _, err := w.Write(body); err != nil {
		return eris.Wrapf(err, "workbook: write part %s", f.Name)
	}
	return nil
}

func isXMLPart(name string) bool {
	switch path.Ext(name) {
	case ".xml", ".rels":
		return true
	}
	return false
}

func rewritePart(s string) string {
	for _, ns := range strictNamespaces {
		s = strings.ReplaceAll(s, ns.strict, ns.transitional)
	}
	s = stripMainPrefix(s)
	return strikeValRe.ReplaceAllString(s, "<strike/>")
}

// stripMainPrefix turns <x:sheetData> style markup into unprefixed elements
// when the prefix is bound to the SpreadsheetML namespace.
func stripMainPrefix(s string) string {
	m := prefixDeclRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	prefix := m[1]
	if strings.Contains(s, `xmlns="`+transitionalMain+`"`) {
		s = strings.Replace(s, m[0], "", 1)
	} else {
		s = strings.Replace(s, m[0], `xmlns="`+transitionalMain+`"`, 1)
	}
	s = strings.ReplaceAll(s, "<"+prefix+":", "<")
	return strings.ReplaceAll(s, "</"+prefix+":", "</")
}
