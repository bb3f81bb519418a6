package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

type taskEnvelope struct {
	TaskID      string      `json:"taskId"`
	Request     taskRequest `json:"request"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

type taskRequest struct {
	Code                 string   `json:"code"`
	Language             string   `json:"language"`
	Stdin                string   `json:"stdin,omitempty"`
	CPUTimeLimit         *float64 `json:"cpuTimeLimit,omitempty"`
	CPUExtraTime         *float64 `json:"cpuExtraTime,omitempty"`
	CommandLineArguments string   `json:"commandLineArguments,omitempty"`
	CompilerOptions      string   `json:"compilerOptions,omitempty"`
	EncodeOutputToBase64 *bool    `json:"encodeOutputToBase64,omitempty"`
}

func encodeTask(task execution.Task) ([]byte, error) {
	req := task.Request
	payload, err := json.Marshal(taskEnvelope{
		TaskID: task.ID,
		Request: taskRequest{
			Code:                 req.Code,
			Language:             req.Language,
			Stdin:                req.Stdin,
			CPUTimeLimit:         req.CPUTimeLimit,
			CPUExtraTime:         req.CPUExtraTime,
			CommandLineArguments: req.CommandLineArguments,
			CompilerOptions:      req.CompilerOptions,
			EncodeOutputToBase64: req.EncodeOutputToBase64,
		},
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return payload, nil
}

// decodeTaskMessage parses a task message. The returned task carries the id
// from the message key even when the payload is invalid, so the failure can
// still be reported under it.
func decodeTaskMessage(msg kafkago.Message) (execution.Task, error) {
	task := execution.Task{ID: string(msg.Key)}

	var envelope taskEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return task, fmt.Errorf("decode message: %w", err)
	}
	if envelope.TaskID != "" {
		task.ID = envelope.TaskID
	}
	if task.ID == "" {
		return task, fmt.Errorf("task message at %s/%d:%d missing task id", msg.Topic, msg.Partition, msg.Offset)
	}

	r := envelope.Request
	task.Request = execution.SubmissionRequest{
		Code:                 r.Code,
		Language:             r.Language,
		Stdin:                r.Stdin,
		CPUTimeLimit:         r.CPUTimeLimit,
		CPUExtraTime:         r.CPUExtraTime,
		CommandLineArguments: r.CommandLineArguments,
		CompilerOptions:      r.CompilerOptions,
		EncodeOutputToBase64: r.EncodeOutputToBase64,
	}

	if r.Language == "" {
		return task, fmt.Errorf("task message missing language")
	}
	if r.Code == "" {
		return task, fmt.Errorf("task message missing code")
	}
	return task, nil
}
