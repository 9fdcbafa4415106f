package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/houser/pkg/assembler"
)

// ContentHashAlgorithmV1 identifies the canonical hash material.
//
// The material is JSON over the observable answer state: text, result ids,
// answer kind, stats summary, terminal flag and failure text.
const ContentHashAlgorithmV1 = "sha256-canonical-json-v1"

type canonicalSnapshotMaterial struct {
	Text         string   `json:"text"`
	ResultIDs    []string `json:"result_ids"`
	AnswerKind   string   `json:"answer_kind"`
	StatsSummary string   `json:"stats_summary"`
	Highlights   bool     `json:"highlights"`
	Terminal     bool     `json:"terminal"`
	Failure      string   `json:"failure"`
}

// CanonicalSnapshotMaterialJSON returns the bytes hashed by ContentHash.
func CanonicalSnapshotMaterialJSON(s assembler.Snapshot) ([]byte, error) {
	m := canonicalSnapshotMaterial{
		Text:         s.TextContent,
		ResultIDs:    make([]string, 0, len(s.ResultItems)),
		AnswerKind:   strings.TrimSpace(s.AnswerKind),
		StatsSummary: s.StatsSummary,
		Highlights:   s.KeyHighlights != nil,
		Terminal:     s.IsTerminal,
	}
	for _, it := range s.ResultItems {
		m.ResultIDs = append(m.ResultIDs, strings.TrimSpace(it.ID.String()))
	}
	if s.Failure != nil {
		m.Failure = s.Failure.Error()
	}
	return json.Marshal(m)
}

// ContentHash is the lowercase-hex SHA-256 of the canonical material.
func ContentHash(s assembler.Snapshot) (string, error) {
	b, err := CanonicalSnapshotMaterialJSON(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
