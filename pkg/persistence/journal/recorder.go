package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Recorder turns snapshots into journal entries. It satisfies the
// conversation sink interface.
type Recorder struct {
	Store Store
	// TerminalOnly records only the last snapshot of each request.
	TerminalOnly bool
	Now          func() time.Time

	mu       sync.Mutex
	lastHash map[string]string
}

func NewRecorder(store Store, terminalOnly bool) *Recorder {
	return &Recorder{Store: store, TerminalOnly: terminalOnly, Now: time.Now}
}

// Record saves snap unless it is filtered out or repeats the previous
// snapshot of the same request.
func (r *Recorder) Record(ctx context.Context, convID string, snap assembler.Snapshot) error {
	if r == nil || r.Store == nil {
		return errors.New("journal recorder: nil store")
	}
	if r.TerminalOnly && !snap.IsTerminal {
		return nil
	}
	hash, err := ContentHash(snap)
	if err != nil {
		return errors.Wrap(err, "journal recorder: hash snapshot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastHash == nil {
		r.lastHash = map[string]string{}
	}
	key := convID + "/" + snap.RequestID
	if r.lastHash[key] == hash {
		return nil
	}
	payload, err := SnapshotYAML(snap)
	if err != nil {
		return err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if err := r.Store.Save(ctx, Entry{
		ConvID:      convID,
		RequestID:   snap.RequestID,
		Seq:         snap.Seq,
		Trigger:     string(snap.Trigger),
		Outcome:     string(snap.Outcome),
		Terminal:    snap.IsTerminal,
		CreatedAtMs: now().UnixMilli(),
		ContentHash: hash,
		Payload:     payload,
	}); err != nil {
		return err
	}
	r.lastHash[key] = hash
	if snap.IsTerminal {
		delete(r.lastHash, key)
	}
	return nil
}

// SnapshotYAML renders a snapshot as YAML via its JSON form.
func SnapshotYAML(snap assembler.Snapshot) (string, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "journal: marshal snapshot")
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", errors.Wrap(err, "journal: reparse snapshot")
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "journal: marshal yaml")
	}
	return string(out), nil
}
