package tasks

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/Abraxas-365/jobrunner/pkg/fsx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

// CSVSummaryPayload is the csv_summary input.
type CSVSummaryPayload struct {
	File string `json:"file"`
}

// CSVSummaryResult is stored as the job result.
type CSVSummaryResult struct {
	Message string   `json:"message"`
	File    string   `json:"file"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Bytes   int64    `json:"bytes"`
}

// CSVSummary counts the data rows of a CSV file and reports its header.
type CSVSummary struct {
	files fsx.FileReader
}

func NewCSVSummary(files fsx.FileReader) *CSVSummary {
	return &CSVSummary{files: files}
}

func (h *CSVSummary) Execute(ctx context.Context, job *jobx.Job) jobx.Outcome {
	var payload CSVSummaryPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return jobx.Failedf("csv_summary: invalid payload: %v", err)
		}
	}
	payload.File = strings.TrimSpace(payload.File)
	if payload.File == "" {
		return jobx.Failed("csv_summary: payload.file is required")
	}

	info, err := h.files.Stat(ctx, payload.File)
	if err != nil {
		return jobx.Failedf("csv_summary: stat %s: %v", payload.File, err)
	}
	if info.IsDir {
		return jobx.Failedf("csv_summary: %s is a directory", payload.File)
	}

	body, err := h.files.Open(ctx, payload.File)
	if err != nil {
		return jobx.Failedf("csv_summary: open %s: %v", payload.File, err)
	}
	defer body.Close()

	columns, rows, err := summarize(body)
	if err != nil {
		return jobx.Failedf("csv_summary: parse %s: %v", payload.File, err)
	}

	logx.WithFields(logx.Fields{
		"job_id": job.ID.String(),
		"file":   payload.File,
		"rows":   rows,
		"bytes":  info.Size,
	}).Debug("tasks: csv summarized")

	return jobx.Succeeded(CSVSummaryResult{
		Message: "csv_summary completed",
		File:    payload.File,
		Rows:    rows,
		Columns: columns,
		Bytes:   info.Size,
	})
}

// summarize returns the header and the number of records after it.
func summarize(r io.Reader) ([]string, int, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	columns := append([]string(nil), header...)

	rows := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return columns, rows, nil
		}
		if err != nil {
			return nil, 0, err
		}
		rows++
	}
}
