package jobx

import (
	"encoding/json"
	"fmt"
)

// Outcome is what a handler reports: a result on success or a message on failure.
type Outcome struct {
	result  json.RawMessage
	message string
	failed  bool
}

// Succeeded marshals result into a successful outcome. A result that cannot be
// encoded turns the outcome into a failure.
func Succeeded(result any) Outcome {
	if raw, ok := result.(json.RawMessage); ok {
		return Outcome{result: raw}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Failed(fmt.Sprintf("encode result: %v", err))
	}
	return Outcome{result: raw}
}

// Failed reports a failure with a human readable message.
func Failed(message string) Outcome {
	if message == "" {
		message = "job failed"
	}
	return Outcome{message: message, failed: true}
}

// Failedf is Failed with formatting.
func Failedf(format string, args ...any) Outcome {
	return Failed(fmt.Sprintf(format, args...))
}

func (o Outcome) OK() bool                { return !o.failed }
func (o Outcome) Result() json.RawMessage { return o.result }
func (o Outcome) Message() string         { return o.message }
