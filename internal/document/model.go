// Package document maps change requests to engine records and engine hits
// back to response items. It also owns intake sanitization.
package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is what a ChangeRequest asks for.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Status is the item status bit set.
type Status uint8

const (
	StatusApproved Status = 1
	StatusPending  Status = 2
	StatusRemoved  Status = 4

	statusMask = StatusApproved | StatusPending | StatusRemoved
)

// Bits returns the individual flags set in s, lowest first.
func (s Status) Bits() []Status {
	var out []Status
	for b := StatusApproved; b <= StatusRemoved; b <<= 1 {
		if s&b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// ChangeRequest is one add, update or remove notification from the host.
type ChangeRequest struct {
	ID                    string     `json:"id"`
	Action                Action     `json:"action"`
	NamedIndex            string     `json:"namedIndex,omitempty"`
	Title                 string     `json:"title,omitempty"`
	DisplayText           string     `json:"displayText,omitempty"`
	Metadata              string     `json:"metadata,omitempty"`
	Created               time.Time  `json:"created"`
	Modified              time.Time  `json:"modified"`
	Culture               string     `json:"culture,omitempty"`
	ItemType              string     `json:"itemType,omitempty"`
	URI                   string     `json:"uri,omitempty"`
	DataLocator           string     `json:"dataLocator,omitempty"`
	ReferenceID           string     `json:"referenceId,omitempty"`
	BoostFactor           float64    `json:"boostFactor,omitempty"`
	AccessControlList     []string   `json:"accessControlList,omitempty"`
	Categories            []string   `json:"categories,omitempty"`
	VirtualPathNodes      []string   `json:"virtualPathNodes,omitempty"`
	Authors               []string   `json:"authors,omitempty"`
	PublicationStart      *time.Time `json:"publicationStart,omitempty"`
	PublicationEnd        *time.Time `json:"publicationEnd,omitempty"`
	ItemStatus            Status     `json:"itemStatus,omitempty"`
	AutoUpdateVirtualPath bool       `json:"autoUpdateVirtualPath,omitempty"`
}

// IsReference reports whether the request describes reference data merged
// into another document rather than a document of its own.
func (r ChangeRequest) IsReference() bool {
	return r.ReferenceID != ""
}

// ReferenceText is the text a reference item contributes to its parent.
type ReferenceText struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
}

// Source is everything a document is rebuilt from. It is stored with the
// document so cascades and re-merges never need the original request again.
type Source struct {
	Request       ChangeRequest   `json:"request"`
	ExtractedText string          `json:"extractedText,omitempty"`
	References    []ReferenceText `json:"references,omitempty"`
}

// EncodeSource serializes src for storage.
func EncodeSource(src Source) ([]byte, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode source %s: %w", src.Request.ID, err)
	}
	return data, nil
}

// DecodeSource parses a stored source.
func DecodeSource(data []byte) (Source, error) {
	var src Source
	if err := json.Unmarshal(data, &src); err != nil {
		return Source{}, fmt.Errorf("decode source: %w", err)
	}
	return src, nil
}

// Item is the public projection of a document returned by search.
// Metadata and extracted text are never part of it.
type Item struct {
	ID                string     `json:"id"`
	Title             string     `json:"title,omitempty"`
	DisplayText       string     `json:"displayText,omitempty"`
	Created           time.Time  `json:"created"`
	Modified          time.Time  `json:"modified"`
	ItemType          string     `json:"itemType,omitempty"`
	Culture           string     `json:"culture,omitempty"`
	URI               string     `json:"uri,omitempty"`
	DataLocator       string     `json:"dataLocator,omitempty"`
	ReferenceID       string     `json:"referenceId,omitempty"`
	BoostFactor       float64    `json:"boostFactor"`
	NamedIndex        string     `json:"namedIndex"`
	AccessControlList []string   `json:"accessControlList,omitempty"`
	Categories        []string   `json:"categories,omitempty"`
	VirtualPathNodes  []string   `json:"virtualPathNodes,omitempty"`
	Authors           []string   `json:"authors,omitempty"`
	PublicationStart  *time.Time `json:"publicationStart,omitempty"`
	PublicationEnd    *time.Time `json:"publicationEnd,omitempty"`
	ItemStatus        Status     `json:"itemStatus"`
	Score             float64    `json:"score"`
}
