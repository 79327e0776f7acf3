package kernel

import (
	"strings"

	"github.com/google/uuid"
)

// JobID identifies a job across the store, the dispatch queue and the API.
// It is always held in canonical lowercase UUID form.
type JobID string

// NewJobID returns a fresh random job id.
func NewJobID() JobID { return JobID(uuid.New().String()) }

// ParseJobID validates s as a UUID and returns it normalized.
func ParseJobID(s string) (JobID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return JobID(u.String()), nil
}

func (id JobID) String() string { return string(id) }
func (id JobID) IsEmpty() bool  { return string(id) == "" }

// ClientID is the subject of an authenticated API caller.
type ClientID string

func NewClientID(id string) ClientID { return ClientID(id) }
func (c ClientID) String() string    { return string(c) }
func (c ClientID) IsEmpty() bool     { return string(c) == "" }
