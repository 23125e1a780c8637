package ppdb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jtang613/goppdb/pkg/ppdb/metadata"
)

// Kind GUID of Source Link CustomDebugInformation rows, in on-disk byte
// order ({CC110556-A091-4D38-9FEC-25AB9A351A6A}).
var guidSourceLink = [16]byte{0x56, 0x05, 0x11, 0xcc, 0x91, 0xa0, 0x38, 0x4d, 0x9f, 0xec, 0x25, 0xab, 0x9a, 0x35, 0x1a, 0x6a}

// SourceLinkMappings resolves document paths to source URLs using the
// Source Link JSON documents embedded in the PPDB.
type SourceLinkMappings struct {
	rules []sourceLinkRule
}

type sourceLinkRule struct {
	// pattern is the lowercased document path, with a trailing '*'
	// stripped into the prefix flag.
	pattern string
	prefix  bool
	url     string
}

// SourceLinks collects every Source Link document in the file. The result is
// empty (not nil) when the file carries none.
func (f *File) SourceLinks() (*SourceLinkMappings, error) {
	mappings := &SourceLinkMappings{}

	count := f.meta.Tables.RowCount(metadata.TableCustomDebugInformation)
	for row := uint32(1); row <= count; row++ {
		cdi, err := f.meta.Tables.CustomDebugInformationRow(row)
		if err != nil {
			return nil, err
		}
		if cdi.Kind == 0 {
			continue
		}
		guid, err := f.meta.GUIDs.Get(cdi.Kind)
		if err != nil {
			return nil, err
		}
		if guid != guidSourceLink {
			continue
		}
		blob, err := f.meta.Blobs.Get(cdi.Value)
		if err != nil {
			return nil, err
		}
		if err := mappings.add(blob); err != nil {
			return nil, err
		}
	}

	mappings.sortRules()
	return mappings, nil
}

func (m *SourceLinkMappings) add(data []byte) error {
	var doc struct {
		Documents map[string]string `json:"documents"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSourceLink, err)
	}
	if doc.Documents == nil {
		return fmt.Errorf("no documents object: %w", ErrBadSourceLink)
	}

	for pattern, url := range doc.Documents {
		rule := sourceLinkRule{pattern: strings.ToLower(pattern), url: url}
		if p, ok := strings.CutSuffix(rule.pattern, "*"); ok {
			rule.pattern = p
			rule.prefix = true
		}
		m.rules = append(m.rules, rule)
	}
	return nil
}

// sortRules orders exact rules first, then prefix rules longest first, so
// Resolve can take the first match.
func (m *SourceLinkMappings) sortRules() {
	sort.SliceStable(m.rules, func(i, j int) bool {
		a, b := m.rules[i], m.rules[j]
		if a.prefix != b.prefix {
			return !a.prefix
		}
		return len(a.pattern) > len(b.pattern)
	})
}

// Len returns the number of rules.
func (m *SourceLinkMappings) Len() int {
	return len(m.rules)
}

// Resolve maps a document path to its source URL. Paths compare
// case-insensitively; a '*' in the rule's URL receives the part of the path
// matched by the pattern's wildcard, with backslashes normalized to slashes.
func (m *SourceLinkMappings) Resolve(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, rule := range m.rules {
		if rule.prefix {
			if strings.HasPrefix(lower, rule.pattern) {
				rest := strings.ReplaceAll(path[len(rule.pattern):], `\`, "/")
				return strings.Replace(rule.url, "*", rest, 1), true
			}
			continue
		}
		if lower == rule.pattern {
			return rule.url, true
		}
	}
	return "", false
}
