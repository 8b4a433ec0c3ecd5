// client.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package agents

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/store"
	"go.uber.org/zap"
)

// MaxBugReportChars caps each free-text field of a bug report
const MaxBugReportChars = 10000

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// UploadError is a failed forward to an agent webhook
type UploadError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Client calls the agent, bug report and confirmation webhooks. There are no retries.
type Client struct {
	http            *resty.Client
	bugReportURL    string
	confirmationURL string
	log             *zap.Logger
}

// NewClient creates a Client
func NewClient(timeout time.Duration, bugReportURL, confirmationURL string, log *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json, text/plain, */*")

	return &Client{
		http:            client,
		bugReportURL:    bugReportURL,
		confirmationURL: confirmationURL,
		log:             log,
	}
}

// Upload posts one file to the agent's webhook as multipart field "file".
// The body is decoded as JSON when it parses, otherwise it is returned as text.
func (c *Client) Upload(ctx context.Context, agent config.Agent, fileName string, r io.Reader) (interface{}, error) {
	c.log.Info("forwarding document to agent",
		zap.String("agent", agent.ID),
		zap.String("file", fileName))

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, r).
		Post(agent.Webhook)
	if err != nil {
		c.log.Error("agent upload failed", zap.String("agent", agent.ID), zap.Error(err))
		return nil, &UploadError{Message: "Failed to upload file", Err: err}
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		c.log.Warn("agent returned error",
			zap.String("agent", agent.ID),
			zap.Int("status", resp.StatusCode()))
		return nil, &UploadError{
			Status:  resp.StatusCode(),
			Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode()),
		}
	}

	body := resp.Body()
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body), nil
	}
	return parsed, nil
}

// BugReport is a user-submitted complaint about an agent's output
type BugReport struct {
	AgentName       string `json:"agent_name" validate:"required"`
	ExpectedOutput  string `json:"expected_output" validate:"required"`
	ActualOutput    string `json:"actual_output" validate:"required"`
	BugDescription  string `json:"bug_description" validate:"required"`
	ContextFileName string `json:"context_file_name"`
	TraceID         string `json:"trace_id"`
}

// Validate checks the required fields in form order
func (b BugReport) Validate() error {
	switch {
	case strings.TrimSpace(b.AgentName) == "":
		return errors.New("Please select an agent.")
	case strings.TrimSpace(b.ExpectedOutput) == "":
		return errors.New("Expected output is required.")
	case strings.TrimSpace(b.ActualOutput) == "":
		return errors.New("Actual output is required.")
	case strings.TrimSpace(b.BugDescription) == "":
		return errors.New("Bug description is required.")
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// SubmitBugReport validates, caps and posts a bug report and returns its trace id
func (c *Client) SubmitBugReport(ctx context.Context, report BugReport) (string, error) {
	if err := report.Validate(); err != nil {
		return "", err
	}

	report.ExpectedOutput = truncate(report.ExpectedOutput, MaxBugReportChars)
	report.ActualOutput = truncate(report.ActualOutput, MaxBugReportChars)
	report.BugDescription = truncate(report.BugDescription, MaxBugReportChars)
	report.TraceID = "br_" + uuid.NewString()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(c.bugReportURL)
	if err != nil {
		c.log.Error("bug report submission failed", zap.Error(err))
		return "", fmt.Errorf("bug report: %w", err)
	}
	if resp.IsError() {
		return "", &store.HTTPError{Status: resp.StatusCode(), Body: resp.String()}
	}

	c.log.Info("bug report submitted", zap.String("trace_id", report.TraceID), zap.String("agent", report.AgentName))
	return report.TraceID, nil
}

// Confirmation is the welcome mail payload for a new user
type Confirmation struct {
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Role          string   `json:"role"`
	SitesAssigned []string `json:"sites_assigned"`
}

// SendConfirmation posts the welcome mail. Failure is reported, never fatal.
func (c *Client) SendConfirmation(ctx context.Context, conf Confirmation) bool {
	if conf.SitesAssigned == nil {
		conf.SitesAssigned = []string{}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(conf).
		Post(c.confirmationURL)
	if err != nil {
		c.log.Error("failed to send confirmation email", zap.Error(err))
		return false
	}
	if resp.IsError() {
		c.log.Error("failed to send confirmation email",
			zap.Error(fmt.Errorf("webhook failed with status: %d", resp.StatusCode())))
		return false
	}
	return true
}

// SendRecoveryLink delivers a password reset link through the confirmation webhook
func (c *Client) SendRecoveryLink(ctx context.Context, email, link string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"email":      email,
			"type":       "password_recovery",
			"reset_link": link,
		}).
		Post(c.confirmationURL)
	if err != nil {
		return fmt.Errorf("send recovery link: %w", err)
	}
	if resp.IsError() {
		return &store.HTTPError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// GeneratePassword returns 12 random characters for a new account
func GeneratePassword() (string, error) {
	const length = 12
	max := big.NewInt(int64(len(passwordCharset)))

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
