package item

import (
	"encoding/json"
	"strings"
)

// Creator is one author, editor, or other contributor on a citation.
type Creator struct {
	Family  string `json:"family,omitempty"`
	Given   string `json:"given,omitempty"`
	Literal string `json:"literal,omitempty"`
}

// Empty reports whether the creator carries no name at all.
func (c Creator) Empty() bool {
	return strings.TrimSpace(c.Family) == "" &&
		strings.TrimSpace(c.Given) == "" &&
		strings.TrimSpace(c.Literal) == ""
}

// Citation is the metadata snapshot of a linked external record. It is a
// cached copy for completeness evaluation; the external reference manager
// remains the source of truth for the record itself.
type Citation struct {
	Title          string    `json:"title,omitempty"`
	Creators       []Creator `json:"creators,omitempty"`
	Date           string    `json:"date,omitempty"`
	ContainerTitle string    `json:"container_title,omitempty"`
	DOI            string    `json:"doi,omitempty"`
	URL            string    `json:"url,omitempty"`
	Abstract       string    `json:"abstract,omitempty"`
	ItemType       string    `json:"item_type,omitempty"`
}

// Required field names for a style-complete citation.
const (
	FieldTitle   = "title"
	FieldCreator = "creator"
	FieldDate    = "date"
)

// MissingFields lists the required fields absent from the citation, in a
// fixed order: title, creator, date.
func (c Citation) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.Title) == "" {
		missing = append(missing, FieldTitle)
	}
	hasCreator := false
	for _, creator := range c.Creators {
		if !creator.Empty() {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		missing = append(missing, FieldCreator)
	}
	if strings.TrimSpace(c.Date) == "" {
		missing = append(missing, FieldDate)
	}
	return missing
}

// Complete reports whether the citation carries every required field.
func (c Citation) Complete() bool {
	return len(c.MissingFields()) == 0
}

// Encode serializes the citation for storage on the item.
func (c Citation) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseCitation decodes a stored citation snapshot. An empty payload yields
// a zero citation without error.
func ParseCitation(payload string) (Citation, error) {
	var c Citation
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
		return Citation{}, err
	}
	return c, nil
}

// CitationCompleteness recomputes completeness from the item's cached
// citation snapshot. Unlinked items are never complete.
func (i URLItem) CitationCompleteness() (complete bool, missing []string) {
	if !i.Linked() {
		return false, []string{FieldTitle, FieldCreator, FieldDate}
	}
	cit, err := ParseCitation(i.CitationJSON)
	if err != nil {
		return false, []string{FieldTitle, FieldCreator, FieldDate}
	}
	missing = cit.MissingFields()
	return len(missing) == 0, missing
}
