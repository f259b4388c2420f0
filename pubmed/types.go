// Package pubmed is a client for the NCBI E-utilities API. It covers the two
// calls manuscript workflows need, ESearch and EFetch, with polite rate
// limiting and an on-disk response cache so repeated literature lookups do
// not hammer NCBI.
package pubmed

// SearchResult is the outcome of an ESearch query.
type SearchResult struct {
	Count            int      `json:"count"`
	PMIDs            []string `json:"pmids"`
	QueryTranslation string   `json:"query_translation,omitempty"`
}

// SearchOptions tunes an ESearch query.
type SearchOptions struct {
	Limit   int    `json:"limit,omitempty"`    // retmax, default 20
	Sort    string `json:"sort,omitempty"`     // e.g. "pub_date", "relevance"
	MinDate string `json:"min_date,omitempty"` // YYYY or YYYY/MM/DD
	MaxDate string `json:"max_date,omitempty"`
}

// Article is a PubMed record with the fields cited in manuscripts.
type Article struct {
	PMID             string            `json:"pmid"`
	Title            string            `json:"title"`
	Abstract         string            `json:"abstract,omitempty"`
	AbstractSections []AbstractSection `json:"abstract_sections,omitempty"`
	Authors          []Author          `json:"authors,omitempty"`
	Journal          string            `json:"journal,omitempty"`
	JournalAbbrev    string            `json:"journal_abbrev,omitempty"`
	Volume           string            `json:"volume,omitempty"`
	Issue            string            `json:"issue,omitempty"`
	Pages            string            `json:"pages,omitempty"`
	Year             string            `json:"year,omitempty"`
	Month            string            `json:"month,omitempty"`
	DOI              string            `json:"doi,omitempty"`
	PMCID            string            `json:"pmcid,omitempty"`
	PublicationTypes []string          `json:"publication_types,omitempty"`
	Language         string            `json:"language,omitempty"`
}

// AbstractSection is one labeled part of a structured abstract.
type AbstractSection struct {
	Label string `json:"label,omitempty"`
	Text  string `json:"text"`
}

// Author is one article author.
type Author struct {
	LastName       string `json:"last_name,omitempty"`
	ForeName       string `json:"fore_name,omitempty"`
	Initials       string `json:"initials,omitempty"`
	CollectiveName string `json:"collective_name,omitempty"`
}

// FullName returns "ForeName LastName", or the collective name if present.
func (a Author) FullName() string {
	if a.CollectiveName != "" {
		return a.CollectiveName
	}
	if a.ForeName == "" {
		return a.LastName
	}
	return a.ForeName + " " + a.LastName
}
