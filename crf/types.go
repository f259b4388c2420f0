package crf

// Variable is one data-collection item extracted from a CRF document.
type Variable struct {
	// Name is the bracketed identifier, e.g. SEX for "[SEX]".
	Name string `json:"name"`
	// Expression is the field label or question text preceding the marker.
	Expression string `json:"expression"`
	// Coding holds code assignments and format hints, e.g. "1=Male 2=Female".
	Coding string `json:"coding"`
	// Source records where the variable was found: paragraph or table.
	Source string `json:"source"`
	// Section is the index of the document section the variable came from.
	Section int `json:"section"`
}

const (
	SourceParagraph = "paragraph"
	SourceTable     = "table"
)

// Stats summarizes a parse run.
type Stats struct {
	Sections   int `json:"sections"`
	Paragraphs int `json:"paragraphs"`
	Tables     int `json:"tables"`
	Matches    int `json:"matches"`    // bracket markers seen, before dedup
	Duplicates int `json:"duplicates"` // records dropped because the name was already taken
	Variables  int `json:"variables"`  // records in the final output
}

// Result is the ordered, name-deduplicated output of a parse.
type Result struct {
	Variables []Variable `json:"variables"`
	Stats     Stats      `json:"stats"`
}
