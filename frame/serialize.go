package frame

import (
	"encoding/json"
	"time"
)

// Meta is the JSON view of a Frame without its image bytes.
type Meta struct {
	ID         string `json:"id"`
	Cycle      uint64 `json:"cycle"`
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	Size       int    `json:"size"`
	Hash       string `json:"hash"`
	CapturedAt int64  `json:"captured_at"` // epoch milliseconds

	CanGoBack    bool `json:"can_go_back"`
	CanGoForward bool `json:"can_go_forward"`
}

// MetaOf summarises f.
func MetaOf(f Frame) Meta {
	return Meta{
		ID:         f.ID,
		Cycle:      f.Cycle,
		URL:        f.URL,
		Width:      f.Width,
		Height:     f.Height,
		Format:     f.Format.String(),
		Size:       len(f.Data),
		Hash:       f.Hash,
		CapturedAt: f.CapturedAt.UnixMilli(),

		CanGoBack:    f.CanGoBack,
		CanGoForward: f.CanGoForward,
	}
}

// MarshalMeta serialises the metadata of f to JSON.
func MarshalMeta(f Frame) ([]byte, error) {
	return json.Marshal(MetaOf(f))
}

// UnmarshalMeta deserialises frame metadata.
func UnmarshalMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Time returns CapturedAt as a time.Time.
func (m Meta) Time() time.Time {
	return time.UnixMilli(m.CapturedAt)
}
