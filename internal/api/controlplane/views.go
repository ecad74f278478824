package controlplane

import (
	"time"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// StepView is one chain step as shown to clients. Position is 1-based.
type StepView struct {
	Position int                `json:"position"`
	Category string             `json:"category"`
	Name     string             `json:"name"`
	Options  map[string]any     `json:"options"`
	Bypass   *bypass.Descriptor `json:"bypass,omitempty"`
}

type ChainView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Operation   *string    `json:"operation"`
	Bypasses    []StepView `json:"bypasses"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// chainView renders c. With full set each step carries its module
// descriptor; steps whose module is no longer registered are left bare.
func (s *Server) chainView(c *domain.Chain, full bool) ChainView {
	v := ChainView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Operation:   c.Operation,
		Bypasses:    make([]StepView, 0, len(c.Steps)),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for i, step := range c.Steps {
		sv := StepView{
			Position: i + 1,
			Category: step.Category,
			Name:     step.Name,
			Options:  step.Options,
		}
		if sv.Options == nil {
			sv.Options = map[string]any{}
		}
		if full {
			if d, err := s.svc.DescribeBypass(step.Category, step.Name); err == nil {
				sv.Bypass = &d
			}
		}
		v.Bypasses = append(v.Bypasses, sv)
	}
	return v
}

type ChainResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Chain   ChainView `json:"chain"`
}

type ChainListResponse struct {
	Status string      `json:"status"`
	Chains []ChainView `json:"chains"`
}

type BypassResponse struct {
	Status string            `json:"status"`
	Bypass bypass.Descriptor `json:"bypass"`
}

type BypassListResponse struct {
	Status   string `json:"status"`
	Bypasses any    `json:"bypasses"`
}

type StagerOutputResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Stager  map[string]any `json:"stager"`
}

type StagerResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Stager  *domain.Stager `json:"stager"`
}

type StagerListResponse struct {
	Status  string           `json:"status"`
	Stagers []*domain.Stager `json:"stagers"`
}

type OperationResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Operation *domain.Operation `json:"operation"`
}

type OperationListResponse struct {
	Status     string              `json:"status"`
	Operations []*domain.Operation `json:"operations"`
}

type LogListResponse struct {
	Status string             `json:"status"`
	Logs   []*domain.LogEntry `json:"logs"`
}

type ImportResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}
