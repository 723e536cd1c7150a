package download

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/google/uuid"
)

// ErrIllegalTransition is returned for a state change the job lifecycle
// does not allow.
var ErrIllegalTransition = errors.New("illegal job state transition")

var transitions = map[models.JobStatus][]models.JobStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusFailed},
	models.StatusInProgress: {models.StatusDone, models.StatusFailed},
}

// Job is one attachment download. The producer creates it, then exactly
// one worker owns it; the mutex only protects readers such as Result.
type Job struct {
	ID          string
	Attachment  models.Attachment
	Destination string

	mu       sync.Mutex
	status   models.JobStatus
	attempts int
	location string
	bytes    int64
	err      error
	created  time.Time
	started  time.Time
	finished time.Time
}

func newJob(a models.Attachment, destination string) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Attachment:  a,
		Destination: destination,
		status:      models.StatusPending,
		created:     time.Now(),
	}
}

// Status returns the current state.
func (j *Job) Status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) transition(to models.JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to)
}

func (j *Job) transitionLocked(to models.JobStatus) error {
	for _, allowed := range transitions[j.status] {
		if allowed == to {
			j.status = to
			switch to {
			case models.StatusInProgress:
				j.started = time.Now()
			case models.StatusDone, models.StatusFailed:
				j.finished = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.status, to)
}

func (j *Job) start() error {
	return j.transition(models.StatusInProgress)
}

func (j *Job) complete(location string, bytes int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(models.StatusDone); err != nil {
		return err
	}
	j.location = location
	j.bytes = bytes
	return nil
}

func (j *Job) fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e := j.transitionLocked(models.StatusFailed); e != nil {
		return e
	}
	j.err = err
	return nil
}

func (j *Job) addAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	return j.attempts
}

// Err returns the failure cause, nil unless the job failed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Result returns a read-only view of the job.
func (j *Job) Result() models.JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := models.JobResult{
		ID:          j.ID,
		MessageID:   j.Attachment.MessageID,
		Filename:    j.Attachment.Filename,
		Destination: j.Destination,
		Location:    j.location,
		Status:      j.status,
		Attempts:    j.attempts,
		Retries:     max(j.attempts-1, 0),
		Size:        j.Attachment.Size,
		Bytes:       j.bytes,
	}
	if j.err != nil {
		r.Error = j.err.Error()
	}
	return r
}

func (j *Job) event(attempt int) models.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.Event{
		JobID:    j.ID,
		Status:   j.status,
		Time:     time.Now(),
		Attempt:  attempt,
		Filename: j.Destination,
		Bytes:    j.bytes,
		Err:      j.err,
	}
}
