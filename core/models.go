package core

import (
	"time"
)

// DocumentStatus is the externally visible lifecycle state of a document.
// There is no zero value: every stored document carries one of the three
// statuses below.
type DocumentStatus int

const (
	// StatusProcessing means the ingestion pipeline is still running.
	StatusProcessing DocumentStatus = iota + 1
	// StatusCompleted means every stage finished and the document is searchable.
	StatusCompleted
	// StatusFailed means the pipeline stopped. The document is not searchable.
	StatusFailed
)

func (s DocumentStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MarshalText encodes the status by name.
func (s DocumentStatus) MarshalText() ([]byte, error) {
	if err := ValidateDocumentStatus(s); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name. An empty value is rejected; callers
// that read legacy records must migrate them explicitly.
func (s *DocumentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Stage is the pipeline step a document is in.
type Stage int

const (
	StageUploaded Stage = iota + 1
	StageParsing
	StageSummarizing
	StagePersisting
	StageIndexing
	StageCompleted
	StageFailed
)

var stageNames = map[Stage]string{
	StageUploaded:    "uploaded",
	StageParsing:     "parsing",
	StageSummarizing: "summarizing",
	StagePersisting:  "persisting",
	StageIndexing:    "indexing",
	StageCompleted:   "completed",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, ErrInvalidStage
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return ErrInvalidStage
}

// Document is an uploaded file tracked through ingestion.
type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	PageCount int            `json:"page_count"`
	Status    DocumentStatus `json:"status"`
	Stage     Stage          `json:"stage"`
	Progress  int            `json:"progress"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ElementType is the kind of a parsed content element.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementTable ElementType = "table"
	ElementImage ElementType = "image"
)

// ContentElement is one parsed unit of a document: a text block, a table, or
// an image. It is the parent that a search hit resolves back to.
type ContentElement struct {
	Type       ElementType `json:"type"`
	Text       string      `json:"text,omitempty"`
	TableHTML  string      `json:"table_html,omitempty"`
	Image      []byte      `json:"image,omitempty"`
	ImageMIME  string      `json:"image_mime,omitempty"`
	PageNumber *int        `json:"page_number,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// SummaryInput returns the text a summarizer should read for this element.
// Tables prefer their HTML form.
func (e *ContentElement) SummaryInput() string {
	if e.Type == ElementTable && e.TableHTML != "" {
		return e.TableHTML
	}
	return e.Text
}

// Page returns the page number, or 0 when unknown.
func (e *ContentElement) Page() int {
	if e.PageNumber == nil {
		return 0
	}
	return *e.PageNumber
}

// PageRef returns a pointer suitable for ContentElement.PageNumber.
func PageRef(n int) *int {
	return &n
}

// SummarySet holds the summaries produced for one document. Each slice is
// index-aligned with the parents of the same type in parse order.
type SummarySet struct {
	DocID     string    `json:"doc_id"`
	Texts     []string  `json:"texts"`
	Tables    []string  `json:"tables"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"created_at"`
}

// ChildEntry is the searchable record minted for one parent at index time.
// ChildID is the join key between the vector store and the parent index.
type ChildEntry struct {
	ChildID    string      `json:"child_id"`
	DocID      string      `json:"doc_id"`
	ParentID   string      `json:"parent_id"`
	Type       ElementType `json:"type"`
	PageNumber *int        `json:"page_number,omitempty"`
	Source     string      `json:"source,omitempty"`
	Summary    string      `json:"summary"`
}

// SourceResult is a resolved search hit.
type SourceResult struct {
	ParentID   string      `json:"parent_id"`
	DocID      string      `json:"doc_id"`
	Type       ElementType `json:"type"`
	PageNumber *int        `json:"page_number,omitempty"`
	Source     string      `json:"source,omitempty"`
	Summary    string      `json:"summary"`
	Score      float64     `json:"score"`
	RawScore   float64     `json:"raw_score"`
	Text       string      `json:"text,omitempty"`
	TableHTML  string      `json:"table_html,omitempty"`
	Image      []byte      `json:"image_b64,omitempty"`
	ImageMIME  string      `json:"image_mime,omitempty"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat session.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Sources   []SourceResult `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SessionSummary describes a chat session for listings.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
