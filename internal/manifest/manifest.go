// Package manifest rewrites the mesh file references of a scene manifest to
// ASCII names and renames the referenced mesh files to match.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/regionstream/internal/core/observability/log"
)

// Mapping replaces one name fragment.
type Mapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Table is an ordered list of fragment replacements.
type Table struct {
	Names []Mapping `yaml:"names"`
}

func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	var t Table
	if err = yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for i, m := range t.Names {
		if m.From == "" {
			return Table{}, fmt.Errorf("%s: names[%d] has empty from", filepath.Base(path), i)
		}
	}
	return t, nil
}

// Transliterate turns backslashes into slashes and applies every mapping in order.
func (t Table) Transliterate(s string) string {
	out := strings.ReplaceAll(s, `\`, "/")
	for _, m := range t.Names {
		out = strings.ReplaceAll(out, m.From, m.To)
	}
	return out
}

// Change is one rewritten value or renamed file.
type Change struct {
	Old string
	New string
}

type Report struct {
	Total   int
	Changes []Change
	// NonASCII lists unchanged values that still hold non-ASCII text, sorted and unique.
	NonASCII []string
	Renamed  []Change
	// Backup is the backup path, empty when one already existed.
	Backup string
}

// Rewrite copies the manifest from r to w, rewriting every
// <string name="filename" value="..."> through t.
func Rewrite(r io.Reader, w io.Writer, t Table) (Report, error) {
	var report Report
	nonASCII := make(map[string]struct{})

	dec := xml.NewDecoder(r)
	enc := xml.NewEncoder(w)
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("parse manifest: %w", err)
		}

		if se, ok := tok.(xml.StartElement); ok && isFilenameElement(se) {
			se = se.Copy()
			for i, a := range se.Attr {
				if a.Name.Local != "value" {
					continue
				}
				report.Total++
				updated := t.Transliterate(a.Value)
				if updated != a.Value {
					report.Changes = append(report.Changes, Change{Old: a.Value, New: updated})
					se.Attr[i].Value = updated
				} else if !isASCII(a.Value) {
					nonASCII[a.Value] = struct{}{}
				}
			}
			tok = se
		}

		if err = enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return report, fmt.Errorf("write manifest: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return report, fmt.Errorf("write manifest: %w", err)
	}

	for v := range nonASCII {
		report.NonASCII = append(report.NonASCII, v)
	}
	sort.Strings(report.NonASCII)
	return report, nil
}

// RewriteFile backs the manifest up to path+".bak" once, then rewrites it in place.
func RewriteFile(path string, t Table) (Report, error) {
	original, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}

	backup := path + ".bak"
	created := false
	if _, err = os.Stat(backup); errors.Is(err, fs.ErrNotExist) {
		if err = os.WriteFile(backup, original, 0o644); err != nil {
			return Report{}, fmt.Errorf("backup manifest: %w", err)
		}
		created = true
	} else if err != nil {
		return Report{}, err
	}

	var out bytes.Buffer
	report, err := Rewrite(bytes.NewReader(original), &out, t)
	if err != nil {
		return report, err
	}
	if created {
		report.Backup = backup
	}
	if err = os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return report, err
	}
	return report, nil
}

// RenameMeshes renames every file in dir whose transliterated name differs.
func RenameMeshes(dir string, t Table) ([]Change, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var renamed []Change
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		updated := t.Transliterate(e.Name())
		if updated == e.Name() {
			continue
		}
		if strings.Contains(updated, "/") {
			return renamed, fmt.Errorf("rename %s: mapped name %q contains a path separator", e.Name(), updated)
		}
		if err = os.Rename(filepath.Join(dir, e.Name()), filepath.Join(dir, updated)); err != nil {
			return renamed, err
		}
		renamed = append(renamed, Change{Old: e.Name(), New: updated})
	}
	return renamed, nil
}

// Run rewrites the manifest, then renames the meshes, logging each change.
func Run(manifestPath, meshDir string, t Table, logger log.Log) (Report, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.String("component", "manifest"))

	report, err := RewriteFile(manifestPath, t)
	if err != nil {
		return report, err
	}
	if report.Backup != "" {
		logger.Info("Manifest backed up", log.String("backup", report.Backup))
	}
	for _, c := range report.Changes {
		logger.Info("Manifest value rewritten", log.String("old", c.Old), log.String("new", c.New))
	}
	logger.Info("Manifest rewritten", log.Int("filenames", report.Total), log.Int("changed", len(report.Changes)))
	if len(report.NonASCII) > 0 {
		logger.Warn("Values still hold non-ASCII text; the name table may be missing entries",
			log.Strings("values", report.NonASCII))
	}

	if meshDir == "" {
		return report, nil
	}
	report.Renamed, err = RenameMeshes(meshDir, t)
	for _, c := range report.Renamed {
		logger.Info("Mesh renamed", log.String("old", c.Old), log.String("new", c.New))
	}
	if err != nil {
		return report, err
	}
	logger.Info("Meshes renamed", log.Int("renamed", len(report.Renamed)))
	return report, nil
}

func isFilenameElement(se xml.StartElement) bool {
	if se.Name.Local != "string" {
		return false
	}
	for _, a := range se.Attr {
		if a.Name.Local == "name" && a.Value == "filename" {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
