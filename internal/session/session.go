// Package session obtains the anonymous session permit the vendor requires
// before its connector API will answer SKU and download link requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/clean-dependency-project/winiso/internal/webclient"
)

const (
	// DefaultGateURL is the endpoint that marks a session id as permitted.
	DefaultGateURL = "https://vlscppe.microsoft.com/tags"
	// DefaultOrgID is the organisation id the vendor page registers sessions under.
	DefaultOrgID = "y6jn8c31"
)

// ErrSession indicates the session permit request could not be completed.
var ErrSession = errors.New("session permit failed")

// Session identifies one anonymous client session. It is created once per
// process and never renewed.
type Session struct {
	ID string
	// GateStatus is the HTTP status the gate answered with. Diagnostic only.
	GateStatus int
}

// Config holds configuration for the Permitter.
type Config struct {
	GateURL string
	OrgID   string
	Logger  *slog.Logger
	// NewID generates session ids. Defaults to random UUIDv4 strings.
	NewID func() string
}

// Permitter registers fresh session ids with the vendor gate.
type Permitter struct {
	client  *webclient.Client
	gateURL string
	orgID   string
	logger  *slog.Logger
	newID   func() string
}

// NewPermitter creates a Permitter using the shared web client.
func NewPermitter(client *webclient.Client, config Config) *Permitter {
	if config.GateURL == "" {
		config.GateURL = DefaultGateURL
	}
	if config.OrgID == "" {
		config.OrgID = DefaultOrgID
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.NewID == nil {
		config.NewID = func() string { return uuid.New().String() }
	}
	return &Permitter{
		client:  client,
		gateURL: config.GateURL,
		orgID:   config.OrgID,
		logger:  config.Logger,
		newID:   config.NewID,
	}
}

// Permit generates a session id and announces it to the gate. Only a failed
// round trip is an error; the gate's status code is logged and otherwise
// ignored.
func (p *Permitter) Permit(ctx context.Context) (Session, error) {
	id := p.newID()
	gate := fmt.Sprintf("%s?org_id=%s&session_id=%s",
		p.gateURL, url.QueryEscape(p.orgID), url.QueryEscape(id))

	resp, err := p.client.Get(ctx, gate, webclient.WithEmptyAccept())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		p.logger.Warn("session gate returned non-success status",
			"session_id", id,
			"status", resp.StatusCode)
	} else {
		p.logger.Debug("session permitted", "session_id", id, "status", resp.StatusCode)
	}

	return Session{ID: id, GateStatus: resp.StatusCode}, nil
}
