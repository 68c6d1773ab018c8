package seed

import (
	"sort"
	"strings"

	"flowseed/internal/credentials"
	"flowseed/internal/rbac"
)

// TestConfig is the general seed request: one user in one organization, the
// credentials they own, and the chatflow those credentials get bound into.
type TestConfig struct {
	User        UserSpec                         `json:"user" yaml:"user"`
	Credentials map[string]credentials.EntryList `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Chatflow    ChatflowSpec                     `json:"chatflow,omitempty" yaml:"chatflow,omitempty"`
	Options     SeedOptions                      `json:"options,omitempty" yaml:"options,omitempty"`
}

type UserSpec struct {
	Auth0ID      string           `json:"auth0Id,omitempty" yaml:"auth0Id,omitempty"`
	Email        string           `json:"email" yaml:"email"`
	Name         string           `json:"name,omitempty" yaml:"name,omitempty"`
	Organization OrganizationSpec `json:"organization" yaml:"organization"`
}

type OrganizationSpec struct {
	Auth0ID string `json:"auth0Id" yaml:"auth0Id"`
	Name    string `json:"name" yaml:"name"`
}

type ChatflowSpec struct {
	TemplateID  string `json:"templateId,omitempty" yaml:"templateId,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type SeedOptions struct {
	// PreserveExistingChatflow binds into the user's current default chatflow instead
	// of a fresh template copy, and leaves unmentioned credentials in place.
	PreserveExistingChatflow bool `json:"preserveExistingChatflow,omitempty" yaml:"preserveExistingChatflow,omitempty"`
}

// ScenarioOptions narrows a named scenario to a particular user. UserEmail wins over
// Role; with neither the configured admin is seeded.
type ScenarioOptions struct {
	UserEmail string
	Role      rbac.Role
}

// Result describes what a seed call left in the database.
type Result struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId,omitempty"`
	ChatflowID     string `json:"chatflowId"`
	// Credentials lists the credential ids seeded per canonical type, in entry order.
	Credentials map[string][]string `json:"credentials"`
	// Assigned holds the credential id bound into the chatflow per canonical type.
	Assigned map[string]string `json:"assigned,omitempty"`
	Pruned   int64             `json:"pruned"`
}

func (r *Result) CredentialIDs() []string {
	var ids []string
	for _, group := range r.Credentials {
		ids = append(ids, group...)
	}
	sort.Strings(ids)
	return ids
}

func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
