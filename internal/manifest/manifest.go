// Package manifest fetches and normalizes MTS Link recording manifests.
package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"mtsgrab/internal/logger"
	"mtsgrab/internal/models"
)

// ErrInvalidManifest signals a manifest that cannot drive a session at all:
// a missing or non-positive total duration. Detected before any segment fetch.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the raw recording document as returned by the API. EventLogs
// entries are kept raw because the feed is loosely typed; Normalize extracts
// what it can entry by entry.
type Manifest struct {
	Name      string            `json:"name"`
	Duration  float64           `json:"duration"`
	EventLogs []json.RawMessage `json:"eventLogs"`

	// Raw holds the document bytes for the debug dump.
	Raw []byte `json:"-"`
}

// eventLog is the typed shape of a single usable event log entry.
type eventLog struct {
	RelativeTime float64       `json:"relativeTime"`
	Data         *eventLogData `json:"data"`
}

type eventLogData struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Parse decodes a raw manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest JSON: %w", err)
	}
	m.Raw = data
	return &m, nil
}

// Normalize turns the loosely typed event log list into an ordered list of
// segment refs. Entries that are not objects, lack a data record or lack a
// URL are skipped without failing the manifest. A missing relativeTime
// defaults to 0. Fails only when the total duration is absent or not positive.
func (m *Manifest) Normalize(log logger.Logger) ([]models.SegmentRef, float64, error) {
	if m.Duration <= 0 {
		return nil, 0, fmt.Errorf("%w: duration %f is not positive", ErrInvalidManifest, m.Duration)
	}

	refs := make([]models.SegmentRef, 0, len(m.EventLogs))
	for i, raw := range m.EventLogs {
		var entry eventLog
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Debugf("Skipping event log entry %d: not a structured record: %v", i, err)
			continue
		}
		if entry.Data == nil {
			log.Debugf("Skipping event log entry %d: no data record", i)
			continue
		}
		if entry.Data.URL == "" {
			log.Debugf("Skipping event log entry %d: no url", i)
			continue
		}

		start := entry.RelativeTime
		if start < 0 {
			start = 0
		}

		refs = append(refs, models.SegmentRef{
			URL:         entry.Data.URL,
			StartOffset: start,
			Kind:        kindHint(entry.Data.Type),
			Filename:    DeriveFilename(entry.Data.URL),
			Index:       len(refs),
		})
	}

	return refs, m.Duration, nil
}

// kindHint maps a manifest media type string to a kind hint.
func kindHint(mediaType string) models.Kind {
	switch {
	case strings.Contains(strings.ToLower(mediaType), "video"):
		return models.KindVideo
	case strings.Contains(strings.ToLower(mediaType), "audio"):
		return models.KindAudio
	default:
		return models.KindUnknown
	}
}

// DeriveFilename returns the stable cache filename for a segment URL: the
// path basename with the query stripped, or a deterministic hash-derived name
// when the URL carries no usable basename, so repeated runs against the same
// manifest reuse the same cache entry.
func DeriveFilename(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}

	name := path.Base(trimmed)
	if name == "" || name == "." || name == "/" || strings.HasSuffix(trimmed, "/") {
		sum := md5.Sum([]byte(rawURL))
		return fmt.Sprintf("segment_%s.mp4", hex.EncodeToString(sum[:])[:16])
	}
	return name
}
