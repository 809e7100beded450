package wbo

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// MaxIDLen bounds id, parentid and predecessorid on the wire.
	MaxIDLen = 64
	// MaxSortIndex bounds the relative weight of a record.
	MaxSortIndex = 999999999
)

// WBO is a Weave Basic Object: one versioned record inside a collection.
// Optional fields are pointers so that "absent" and "zero" stay distinct;
// a body without payload is a metadata-only update, not a content write.
type WBO struct {
	ID            string   `json:"id"`
	Collection    string   `json:"-"`
	ParentID      *string  `json:"parentid,omitempty"`
	PredecessorID *string  `json:"predecessorid,omitempty"`
	SortIndex     *int     `json:"sortindex,omitempty"`
	Modified      *float64 `json:"modified,omitempty"`
	Payload       *string  `json:"payload,omitempty"`
	PayloadSize   int      `json:"payload_size,omitempty"`
}

// Parse decodes a single record body. The derived payload_size is always
// recomputed from the payload, a client-supplied value is discarded.
// Unknown fields (ttl and friends) are ignored.
func Parse(data []byte) (*WBO, error) {
	var w WBO
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	w.PayloadSize = 0
	if w.Payload != nil {
		w.PayloadSize = len(*w.Payload)
	}
	return &w, nil
}

// ExtractID pulls a best-effort id out of a fragment that failed to parse,
// so batch responses can still key the failure.
func ExtractID(data []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &probe)
	return probe.ID
}

// Validate checks the record against the protocol constraints. It must pass
// before the record reaches the storage engine. maxPayload <= 0 means
// unlimited.
func (w *WBO) Validate(maxPayload int) error {
	if w.ID == "" {
		return fmt.Errorf("invalid id")
	}
	if len(w.ID) > MaxIDLen || hasSpace(w.ID) {
		return fmt.Errorf("invalid id")
	}
	if w.Collection == "" {
		return fmt.Errorf("invalid collection")
	}
	if w.ParentID != nil && len(*w.ParentID) > MaxIDLen {
		return fmt.Errorf("invalid parentid")
	}
	if w.PredecessorID != nil && len(*w.PredecessorID) > MaxIDLen {
		return fmt.Errorf("invalid predecessorid")
	}
	if w.SortIndex != nil && (*w.SortIndex > MaxSortIndex || *w.SortIndex < -MaxSortIndex) {
		return fmt.Errorf("invalid sortindex")
	}
	if maxPayload > 0 && w.Payload != nil && w.PayloadSize > maxPayload {
		return fmt.Errorf("payload too large")
	}
	return nil
}

// HasPayload reports whether the body carried a payload field at all.
// An empty payload is still a content write.
func (w *WBO) HasPayload() bool { return w.Payload != nil }

// HasParentID reports whether the body carried a parentid field.
func (w *WBO) HasParentID() bool { return w.ParentID != nil }

// SetModified assigns the server timestamp, rounded to the wire precision.
func (w *WBO) SetModified(ts float64) {
	ts = Round(ts)
	w.Modified = &ts
}

// ModifiedOrZero returns the modified watermark, 0 when unset.
func (w *WBO) ModifiedOrZero() float64 {
	if w.Modified == nil {
		return 0
	}
	return *w.Modified
}

// Round clamps a timestamp to the 2-decimal wire precision used for all
// modified comparisons.
func Round(ts float64) float64 {
	return math.Round(ts*100) / 100
}

// Timestamp converts a wall-clock time to a wire timestamp.
func Timestamp(t time.Time) float64 {
	return Round(float64(t.UnixNano()) / 1e9)
}

func hasSpace(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}
