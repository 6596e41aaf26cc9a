package convert

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a conversion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusSegmenting JobStatus = "segmenting"
	StatusExtracting JobStatus = "extracting"
	StatusChunking   JobStatus = "chunking"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single document conversion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`
	Backend  string    `json:"backend"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData     []byte
	errors       []string
	force        bool
	chunkSize    int
	chunkOverlap int
}

// Progress tracks per-unit conversion progress.
type Progress struct {
	TotalUnits   int      `json:"total_units"`
	UnitsFailed  int      `json:"units_failed"`
	UnitsSkipped int      `json:"units_skipped"`
	Chunks       int      `json:"chunks"`
	Errors       []string `json:"errors"`
}

// NewJob creates a queued job for an uploaded file.
func NewJob(filename, title, backendName string, data []byte) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Filename:  filename,
		Title:     title,
		Backend:   backendName,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// SetDoc records the stored document ID.
func (j *Job) SetDoc(docID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DocID = docID
	j.UpdatedAt = time.Now()
}

// SetContentHash records the upload's content hash.
func (j *Job) SetContentHash(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = hash
	j.UpdatedAt = time.Now()
}

// SetTotalUnits records how many units segmentation produced.
func (j *Job) SetTotalUnits(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalUnits = n
	j.UpdatedAt = time.Now()
}

// SetOutcome records per-unit failure counts and the chunk total.
func (j *Job) SetOutcome(failed, skipped, chunks int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.UnitsFailed = failed
	j.Progress.UnitsSkipped = skipped
	j.Progress.Chunks = chunks
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetOptions records per-job overrides from the upload request. A
// zero chunk size or overlap means the service default applies.
func (j *Job) SetOptions(force bool, chunkSize, chunkOverlap int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.force = force
	j.chunkSize = chunkSize
	j.chunkOverlap = chunkOverlap
}

// Force reports whether dedup should be bypassed for this job.
func (j *Job) Force() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.force
}

// ChunkOverrides returns the per-job chunk size and overlap, zero
// when unset.
func (j *Job) ChunkOverrides() (size, overlap int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.chunkSize, j.chunkOverlap
}

// FileData returns the raw upload bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// ReleaseFileData drops the upload bytes once processing is done.
func (j *Job) ReleaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	Status      JobStatus `json:"status"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	Backend     string    `json:"backend"`
	Progress    Progress  `json:"progress"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Filename:    j.Filename,
		Title:       j.Title,
		Backend:     j.Backend,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Progress: Progress{
			TotalUnits:   j.Progress.TotalUnits,
			UnitsFailed:  j.Progress.UnitsFailed,
			UnitsSkipped: j.Progress.UnitsSkipped,
			Chunks:       j.Progress.Chunks,
			Errors:       errs,
		},
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
