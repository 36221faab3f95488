// Package models defines LGPD data-subject requests and consent records.
//
// DataRequest status never changes through field assignment from outside:
// every transition goes through one of the lifecycle methods below, which
// enforce legality and stamp the timestamps.
package models

import (
	"fmt"
	"time"

	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// RequestType is the kind of data-subject request.
type RequestType string

const (
	RequestDataPortability   RequestType = "data_portability"
	RequestDataErasure       RequestType = "data_erasure"
	RequestDataAccess        RequestType = "data_access"
	RequestDataCorrection    RequestType = "data_correction"
	RequestConsentRevocation RequestType = "consent_revocation"
)

func ParseRequestType(raw string) (RequestType, error) {
	switch t := RequestType(raw); t {
	case RequestDataPortability, RequestDataErasure, RequestDataAccess,
		RequestDataCorrection, RequestConsentRevocation:
		return t, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown request type %q", raw)
}

// Response windows per request type (LGPD Art. 18/19). Consent revocation
// must take effect promptly; the rest get the standard window.
const (
	StandardResponseWindow   = 15 * 24 * time.Hour
	RevocationResponseWindow = 2 * 24 * time.Hour
)

// ResponseWindow returns the legal response window for the request type.
func (t RequestType) ResponseWindow() time.Duration {
	if t == RequestConsentRevocation {
		return RevocationResponseWindow
	}
	return StandardResponseWindow
}

// RequestStatus is the lifecycle status of a data request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
	StatusExpired    RequestStatus = "expired"
)

// terminalStatuses: once reached, no lifecycle method succeeds again.
var terminalStatuses = map[RequestStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusExpired:   true,
}

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool { return terminalStatuses[s] }

// FileMetadata describes the artifact produced by a completed request
// (export archive, erasure report).
type FileMetadata struct {
	Path string `json:"path,omitempty"`
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// DataRequest is the aggregate root for one data-subject request. Version is
// the optimistic-lock column.
type DataRequest struct {
	ID                  id.DataRequestID
	Version             int
	UserID              id.UserID
	Type                RequestType
	Status              RequestStatus
	DueDate             time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
	File                FileMetadata
	ErrorMessage        string
	ProcessedBy         string
	AdminNotes          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewDataRequest builds a pending request with the due date derived from the
// type's legal response window.
func NewDataRequest(userID id.UserID, requestType RequestType, now time.Time) *DataRequest {
	return &DataRequest{
		ID:        id.NewDataRequestID(),
		Version:   1,
		UserID:    userID,
		Type:      requestType,
		Status:    StatusPending,
		DueDate:   now.Add(requestType.ResponseWindow()),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// guard rejects a lifecycle call that is illegal in the current status.
// Terminal states yield a deadline error (the request can never move again);
// wrong-but-live states yield a validation error.
func (r *DataRequest) guard(op string, allowed ...RequestStatus) error {
	for _, s := range allowed {
		if r.Status == s {
			return nil
		}
	}
	if r.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeDeadline, "cannot %s: request is %s (terminal)", op, r.Status)
	}
	return dErrors.Newf(dErrors.CodeValidation, "cannot %s: request is %s", op, r.Status)
}

// StartProcessing moves pending -> processing and records who took it.
func (r *DataRequest) StartProcessing(processorID string, now time.Time) error {
	if err := r.guard("start processing", StatusPending); err != nil {
		return err
	}
	if processorID == "" {
		return dErrors.New(dErrors.CodeValidation, "processor id is required")
	}
	r.Status = StatusProcessing
	r.ProcessingStartedAt = &now
	r.ProcessedBy = processorID
	r.UpdatedAt = now
	return nil
}

// Complete moves processing -> completed, optionally attaching the produced
// file's metadata.
func (r *DataRequest) Complete(file FileMetadata, now time.Time) error {
	if err := r.guard("complete", StatusProcessing); err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.File = file
	r.UpdatedAt = now
	return nil
}

// Fail moves pending or processing -> failed. Pending is legal for failures
// detected before processing starts (unreachable user, invalid request).
func (r *DataRequest) Fail(errorMessage string, now time.Time) error {
	if err := r.guard("fail", StatusPending, StatusProcessing); err != nil {
		return err
	}
	if errorMessage == "" {
		return dErrors.New(dErrors.CodeValidation, "error message is required")
	}
	r.Status = StatusFailed
	r.ErrorMessage = errorMessage
	r.UpdatedAt = now
	return nil
}

// Cancel moves pending or processing -> cancelled.
func (r *DataRequest) Cancel(now time.Time) error {
	if err := r.guard("cancel", StatusPending, StatusProcessing); err != nil {
		return err
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return nil
}

// Expire moves pending -> expired, legal only past the due date. The sweep
// calls this; it is never triggered by a read.
func (r *DataRequest) Expire(now time.Time) error {
	if err := r.guard("expire", StatusPending); err != nil {
		return err
	}
	if !now.After(r.DueDate) {
		return dErrors.Newf(dErrors.CodeValidation,
			"cannot expire: due date %s has not passed", r.DueDate.Format(time.RFC3339))
	}
	r.Status = StatusExpired
	r.UpdatedAt = now
	return nil
}

// IsWithinLegalDeadline reports whether the request is still inside its
// response window. Pure query, no side effects.
func (r *DataRequest) IsWithinLegalDeadline(now time.Time) bool {
	return !now.After(r.DueDate)
}

func (r *DataRequest) Clone() *DataRequest {
	cp := *r
	if r.ProcessingStartedAt != nil {
		t := *r.ProcessingStartedAt
		cp.ProcessingStartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (r *DataRequest) AuditKind() string   { return "data_request" }
func (r *DataRequest) AuditID() string     { return r.ID.String() }
func (r *DataRequest) AuditStatus() string { return string(r.Status) }

func (r *DataRequest) DiffableFields() map[string]string {
	fields := map[string]string{
		"status":       string(r.Status),
		"type":         string(r.Type),
		"processed_by": r.ProcessedBy,
	}
	if r.ErrorMessage != "" {
		fields["error_message"] = r.ErrorMessage
	}
	if r.File.Path != "" {
		fields["file"] = fmt.Sprintf("%s (%d bytes)", r.File.Path, r.File.Size)
	}
	return fields
}
