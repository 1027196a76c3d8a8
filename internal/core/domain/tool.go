package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type TrackableStatus string

const (
	TrackableYes     TrackableStatus = "Yes"
	TrackableNo      TrackableStatus = "No"
	TrackablePartial TrackableStatus = "Partial"
	TrackableSpecial TrackableStatus = "Special"
	TrackableUnknown TrackableStatus = "Unknown"
)

func (s TrackableStatus) Valid() bool {
	switch s {
	case TrackableYes, TrackableNo, TrackablePartial, TrackableSpecial, TrackableUnknown:
		return true
	}
	return false
}

type Trackable struct {
	Status        TrackableStatus `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	ExampleSite   string          `json:"example_site,omitempty"`
	Documentation string          `json:"documentation,omitempty"`
}

type Trackables struct {
	GTM       *Trackable `json:"gtm,omitempty"`
	GA4       *Trackable `json:"ga4,omitempty"`
	GoogleAds *Trackable `json:"google_ads,omitempty"`
	MSA       *Trackable `json:"msa,omitempty"`
}

type ToolVersion struct {
	VersionName        string     `json:"versionName"`
	Slug               string     `json:"slug,omitempty"`
	Trackables         Trackables `json:"trackables"`
	TeamConsiderations string     `json:"team_considerations,omitempty"`
	SKRecommended      bool       `json:"sk_recommended"`
}

type UserInfo struct {
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Tool is the cached and versioned catalog entity. The store assigns ID;
// NormalizedName is derived from Name and enforces case-insensitive
// uniqueness within a Category. OptimisticVersion is written only by the
// version controller.
type Tool struct {
	ID                string        `json:"id,omitempty"`
	Name              string        `json:"name"`
	Category          string        `json:"category"`
	NormalizedName    string        `json:"normalizedName,omitempty"`
	Versions          []ToolVersion `json:"versions"`
	OptimisticVersion int64         `json:"_optimisticVersion"`
	CreatedAt         string        `json:"createdAt,omitempty"`
	UpdatedAt         string        `json:"updatedAt,omitempty"`
	UpdatedBy         *UserInfo     `json:"updatedBy,omitempty"`
}

// ToolFromDoc converts a raw store document into a validated Tool.
// Store payloads are loosely typed; everything entering the service layer
// passes through here.
func ToolFromDoc(id string, doc map[string]any) (Tool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Tool{}, fmt.Errorf("encode document %s: %w", id, err)
	}

	var t Tool
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tool{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	t.ID = id

	if err := t.Validate(); err != nil {
		return Tool{}, fmt.Errorf("document %s: %w", id, err)
	}
	return t, nil
}

// Doc converts the Tool into its store representation. The id is the
// store's key, never a document field.
func (t Tool) Doc() (map[string]any, error) {
	t.ID = ""
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tool: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode tool: %w", err)
	}
	delete(doc, "id")
	return doc, nil
}

func (t Tool) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if t.Category == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if t.OptimisticVersion < 0 {
		return &ValidationError{Field: "_optimisticVersion", Reason: "must be non-negative"}
	}
	for i, v := range t.Versions {
		if v.VersionName == "" {
			return &ValidationError{Field: fmt.Sprintf("versions[%d].versionName", i), Reason: "must not be empty"}
		}
		for name, tr := range map[string]*Trackable{
			"gtm":        v.Trackables.GTM,
			"ga4":        v.Trackables.GA4,
			"google_ads": v.Trackables.GoogleAds,
			"msa":        v.Trackables.MSA,
		} {
			if tr != nil && !tr.Status.Valid() {
				return &ValidationError{
					Field:  fmt.Sprintf("versions[%d].trackables.%s.status", i, name),
					Reason: fmt.Sprintf("unknown status %q", tr.Status),
				}
			}
		}
	}
	return nil
}

// Now returns the canonical timestamp format stored on documents.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
