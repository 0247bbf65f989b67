package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// FileStatus represents the extraction state of an uploaded deck.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusExtracting FileStatus = "extracting"
	StatusExtracted  FileStatus = "extracted"
	StatusFailed     FileStatus = "failed"
)

// FailedMessage is the only error text exposed for a failed file; the
// cause is logged.
const FailedMessage = "Failed to process PDF"

// TrackedFile is one uploaded PDF and its extraction state. Files are
// keyed by ID, never by name, since duplicate names are allowed.
type TrackedFile struct {
	mu sync.Mutex

	ID          string
	FileName    string
	ContentType string
	Size        int64
	ContentHash string

	status       FileStatus
	text         string
	errorMessage string
	addedAt      time.Time
	updatedAt    time.Time

	data   []byte
	cancel context.CancelFunc
}

func newTrackedFile(id, fileName, contentType string, data []byte) *TrackedFile {
	now := time.Now()
	return &TrackedFile{
		ID:          id,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		ContentHash: ContentHashHex(data),
		status:      StatusPending,
		addedAt:     now,
		updatedAt:   now,
		data:        data,
	}
}

func (f *TrackedFile) Status() FileStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Text returns the extracted text, empty unless the file is extracted.
func (f *TrackedFile) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *TrackedFile) setStatus(status FileStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.updatedAt = time.Now()
}

func (f *TrackedFile) markExtracted(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusExtracted
	f.text = text
	f.errorMessage = ""
	f.updatedAt = time.Now()
}

func (f *TrackedFile) markFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusFailed
	f.text = ""
	f.errorMessage = FailedMessage
	f.updatedAt = time.Now()
}

// reset puts a failed file back to pending. It reports false for any
// other state.
func (f *TrackedFile) reset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != StatusFailed {
		return false
	}
	f.status = StatusPending
	f.errorMessage = ""
	f.updatedAt = time.Now()
	return true
}

// setCancel installs the cancel func of a new extraction, releasing the
// previous one.
func (f *TrackedFile) setCancel(cancel context.CancelFunc) {
	f.mu.Lock()
	prev := f.cancel
	f.cancel = cancel
	f.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// abort cancels in-flight extraction, if any.
func (f *TrackedFile) abort() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *TrackedFile) Data() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// FileSnapshot is a read-only, JSON-safe copy of file state.
type FileSnapshot struct {
	ID           string     `json:"id"`
	FileName     string     `json:"fileName"`
	ContentType  string     `json:"contentType"`
	Size         int64      `json:"size"`
	ContentHash  string     `json:"contentHash"`
	Status       FileStatus `json:"status"`
	HasText      bool       `json:"hasText"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	AddedAt      time.Time  `json:"addedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (f *TrackedFile) Snapshot() FileSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FileSnapshot{
		ID:           f.ID,
		FileName:     f.FileName,
		ContentType:  f.ContentType,
		Size:         f.Size,
		ContentHash:  f.ContentHash,
		Status:       f.status,
		HasText:      f.text != "",
		ErrorMessage: f.errorMessage,
		AddedAt:      f.addedAt,
		UpdatedAt:    f.updatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
