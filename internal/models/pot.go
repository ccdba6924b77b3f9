package models

import (
	"time"

	"github.com/google/uuid"
)

// Proof-of-task review decisions. A nil decision means the proof is still
// awaiting review; a task has at most one such proof at a time.
const (
	ProofDecisionApproved = "approved"
	ProofDecisionRejected = "rejected"
)

// Evidence item types (opaque references supplied by the upload service).
const (
	EvidenceTypeImage = "image"
	EvidenceTypeVideo = "video"
	EvidenceTypeLink  = "link"
)

type EvidenceItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

type ProofOfTask struct {
	ID          uuid.UUID      `json:"id"`
	TaskID      uuid.UUID      `json:"task_id"`
	SubmitterID uuid.UUID      `json:"submitter_id"`
	Evidence    []EvidenceItem `json:"evidence"`
	Notes       string         `json:"notes,omitempty"`
	Decision    *string        `json:"decision,omitempty"`
	ReviewerID  *uuid.UUID     `json:"reviewer_id,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty"`
}
