// Package models defines data types for the document ledger and its graph projection.
package models

import (
	"strings"
	"time"
)

// Document is a logical file whose content evolves through an ordered version chain.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	DocumentType   string         `json:"document_type,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	ExperimentID   string         `json:"experiment_id,omitempty"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata"`
	CurrentVersion int            `json:"current_version"`
	Revision       int64          `json:"revision"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Version is an immutable snapshot of a document's content.
type Version struct {
	DocumentID   string    `json:"document_id"`
	Number       int       `json:"version_number"`
	ContentHash  string    `json:"content_hash"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	RestoredFrom *int      `json:"restored_from,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VersionDraft carries the fields of a version before the ledger assigns its number.
type VersionDraft struct {
	ContentHash  string
	Filename     string
	Size         int64
	MimeType     string
	Comment      string
	RestoredFrom *int
	CreatedBy    string
}

// Build returns the Version the draft becomes once numbered.
func (d VersionDraft) Build(documentID string, number int, at time.Time) Version {
	return Version{
		DocumentID:   documentID,
		Number:       number,
		ContentHash:  d.ContentHash,
		Filename:     d.Filename,
		Size:         d.Size,
		MimeType:     d.MimeType,
		Comment:      d.Comment,
		RestoredFrom: d.RestoredFrom,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    at,
	}
}

// FileUpload is the content half of an upload request.
type FileUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// CreateDocumentRequest is the metadata half of a new-document upload.
type CreateDocumentRequest struct {
	Title        string         `json:"title" validate:"required,max=255"`
	Description  string         `json:"description,omitempty" validate:"max=10000"`
	DocumentType string         `json:"document_type,omitempty" validate:"max=100"`
	ProjectID    string         `json:"project_id,omitempty" validate:"max=255"`
	ExperimentID string         `json:"experiment_id,omitempty" validate:"max=255"`
	Tags         []string       `json:"tags,omitempty" validate:"max=50,dive,max=64"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedBy    string         `json:"-" validate:"max=255"`
}

// Validate normalizes and checks the request.
func (r *CreateDocumentRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Tags = NormalizeTags(r.Tags)

	if err := validateStruct(r); err != nil {
		return err
	}

	return ValidateProperties("metadata", r.Metadata)
}

// UpdateDocumentRequest patches document metadata. Nil fields are left unchanged.
type UpdateDocumentRequest struct {
	Title        *string        `json:"title,omitempty" validate:"omitnil,min=1,max=255"`
	Description  *string        `json:"description,omitempty" validate:"omitnil,max=10000"`
	DocumentType *string        `json:"document_type,omitempty" validate:"omitnil,max=100"`
	Tags         []string       `json:"tags,omitempty" validate:"omitempty,max=50,dive,max=64"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Validate normalizes and checks the request.
func (r *UpdateDocumentRequest) Validate() error {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}

	r.Tags = NormalizeTags(r.Tags)

	if err := validateStruct(r); err != nil {
		return err
	}

	return ValidateProperties("metadata", r.Metadata)
}

// Empty reports whether the request changes nothing.
func (r *UpdateDocumentRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.DocumentType == nil && r.Tags == nil && r.Metadata == nil
}

// Apply copies the set fields onto doc.
func (r *UpdateDocumentRequest) Apply(doc *Document) {
	if r.Title != nil {
		doc.Title = *r.Title
	}

	if r.Description != nil {
		doc.Description = *r.Description
	}

	if r.DocumentType != nil {
		doc.DocumentType = *r.DocumentType
	}

	if r.Tags != nil {
		doc.Tags = r.Tags
	}

	if r.Metadata != nil {
		doc.Metadata = r.Metadata
	}
}

// DocumentFilter narrows ListDocuments. Empty fields match everything.
type DocumentFilter struct {
	ProjectID    string
	ExperimentID string
	DocumentType string
	Tag          string
}

// Matches reports whether doc satisfies the filter.
func (f DocumentFilter) Matches(doc *Document) bool {
	if f.ProjectID != "" && doc.ProjectID != f.ProjectID {
		return false
	}

	if f.ExperimentID != "" && doc.ExperimentID != f.ExperimentID {
		return false
	}

	if f.DocumentType != "" && doc.DocumentType != f.DocumentType {
		return false
	}

	if f.Tag != "" {
		for _, t := range doc.Tags {
			if t == f.Tag {
				return true
			}
		}

		return false
	}

	return true
}

// RestoreRequest is the payload for restoring an earlier version.
type RestoreRequest struct {
	Comment string `json:"comment,omitempty" validate:"max=1000"`
}

// Validate checks the request.
func (r *RestoreRequest) Validate() error {
	return validateStruct(r)
}

// LinkRequest instructs the projector to relate a document to another entity.
type LinkRequest struct {
	TargetType string         `json:"target_type" validate:"required"`
	TargetID   string         `json:"target_id" validate:"required,max=255"`
	Relation   string         `json:"relation" validate:"required"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Validate checks the request against the known node and relation types.
func (r *LinkRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}

	if !IsNodeType(r.TargetType) {
		return Invalid("target_type", "unknown node type")
	}

	if !IsRelationType(r.Relation) {
		return Invalid("relation", "unknown relation type")
	}

	return ValidateProperties("properties", r.Properties)
}

// GCResult summarizes a content garbage-collection sweep.
type GCResult struct {
	Scanned  int   `json:"scanned"`
	Orphaned int   `json:"orphaned"`
	Deleted  int   `json:"deleted"`
	Bytes    int64 `json:"bytes"`
	DryRun   bool  `json:"dry_run"`
}
