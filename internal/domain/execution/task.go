package execution

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// FileNamePlaceholder is substituted with the code file name in command templates.
const FileNamePlaceholder = "{fileName}"

// LanguageSpec is a catalog entry describing how to run code in one language.
type LanguageSpec struct {
	Name             string
	Image            string
	ExecuteCommand   string
	CompileCommand   string
	FileExtension    string
	MemoryLimitBytes int64
	CPULimit         float64
	Timeout          time.Duration
}

// Validate checks the catalog invariants of a spec.
func (s LanguageSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("language name must be provided")
	}
	if s.Image == "" {
		return fmt.Errorf("language %q missing image", s.Name)
	}
	if !strings.Contains(s.ExecuteCommand, FileNamePlaceholder) {
		return fmt.Errorf("language %q execute command must contain %s", s.Name, FileNamePlaceholder)
	}
	if s.CompileCommand != "" && !strings.Contains(s.CompileCommand, FileNamePlaceholder) {
		return fmt.Errorf("language %q compile command must contain %s", s.Name, FileNamePlaceholder)
	}
	return nil
}

// CodeFileName is the name of the source file written for this language.
func (s LanguageSpec) CodeFileName() string {
	ext := s.FileExtension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return "code" + ext
}

// SubmissionRequest is what a client submits for execution.
type SubmissionRequest struct {
	Code                 string   `json:"code" binding:"required,base64"`
	Language             string   `json:"language" binding:"required"`
	Stdin                string   `json:"stdin,omitempty"`
	CPUTimeLimit         *float64 `json:"cpuTimeLimit,omitempty"`
	CPUExtraTime         *float64 `json:"cpuExtraTime,omitempty"`
	CommandLineArguments string   `json:"commandLineArguments,omitempty"`
	CompilerOptions      string   `json:"compilerOptions,omitempty"`
	EncodeOutputToBase64 *bool    `json:"encodeOutputToBase64,omitempty"`
}

// ShouldEncodeOutput reports whether stdout/stderr are returned base64 encoded.
// Outputs are encoded unless the client explicitly opted out.
func (r SubmissionRequest) ShouldEncodeOutput() bool {
	return r.EncodeOutputToBase64 == nil || *r.EncodeOutputToBase64
}

// DecodeCode returns the raw source bytes.
func (r SubmissionRequest) DecodeCode() ([]byte, error) {
	code, err := base64.StdEncoding.DecodeString(r.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCode, err)
	}
	return code, nil
}

// Task is one queued unit of work.
type Task struct {
	ID      string
	Request SubmissionRequest
}

// Submission is the audit record written to the submission ledger.
type Submission struct {
	TaskID               string
	Code                 string
	Language             string
	Stdin                string
	CPUTimeLimit         *float64
	CPUExtraTime         *float64
	CommandLineArguments string
	CompilerOptions      string
	StatusID             Status
	CreatedAt            time.Time
}

// NewSubmission builds the ledger record for a processed task.
func NewSubmission(task Task, status Status, now time.Time) Submission {
	req := task.Request
	return Submission{
		TaskID:               task.ID,
		Code:                 req.Code,
		Language:             req.Language,
		Stdin:                req.Stdin,
		CPUTimeLimit:         req.CPUTimeLimit,
		CPUExtraTime:         req.CPUExtraTime,
		CommandLineArguments: req.CommandLineArguments,
		CompilerOptions:      req.CompilerOptions,
		StatusID:             status,
		CreatedAt:            now.UTC(),
	}
}

// Workspace locates the host files backing one run.
type Workspace struct {
	Root      string
	CodeDir   string
	CodeFile  string
	StdinDir  string
	StdinFile string
}

// Paths returns every path that must be released after the run.
func (w Workspace) Paths() []string {
	if w.Root != "" {
		return []string{w.Root}
	}
	var paths []string
	for _, p := range []string{w.CodeDir, w.StdinDir} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
