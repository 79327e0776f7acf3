package jobx

import (
	"encoding/json"
	"strings"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// EnvelopeKey is the field holding the job id in a structured queue token.
const EnvelopeKey = "job_id"

// ParseToken resolves a dispatch queue token to a job id. A token is either a
// bare id or a JSON object carrying the id under EnvelopeKey.
func ParseToken(token string) (kernel.JobID, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return "", jobxErrors.New(ErrMalformedToken).WithDetail("reason", "empty token")
	}

	if strings.HasPrefix(raw, "{") {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return "", jobxErrors.NewWithCause(ErrMalformedToken, err)
		}
		var inner string
		if err := json.Unmarshal(envelope[EnvelopeKey], &inner); err != nil {
			return "", jobxErrors.New(ErrMalformedToken).WithDetail("reason", "missing "+EnvelopeKey)
		}
		raw = inner
	}

	id, err := kernel.ParseJobID(raw)
	if err != nil {
		return "", jobxErrors.NewWithCause(ErrMalformedToken, err).WithDetail("token", token)
	}
	return id, nil
}

// EncodeToken is the token pushed for id.
func EncodeToken(id kernel.JobID) string {
	return id.String()
}
