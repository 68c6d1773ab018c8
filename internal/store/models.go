package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type Organization struct {
	ID      string `db:"id"`
	Auth0ID string `db:"auth0_id"`
	Name    string `db:"name"`
}

type User struct {
	ID                string  `db:"id"`
	Auth0ID           string  `db:"auth0_id"`
	Email             string  `db:"email"`
	Name              string  `db:"name"`
	OrganizationID    *string `db:"organization_id"`
	DefaultChatflowID *string `db:"default_chatflow_id"`
}

// Credential is a stored secret. A nil UserID marks an ownerless credential.
type Credential struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	CredentialName string  `db:"credential_name"`
	EncryptedData  string  `db:"encrypted_data"`
	Visibility     Tags    `db:"visibility"`
	UserID         *string `db:"user_id"`
	OrganizationID *string `db:"organization_id"`
}

// Chatflow is a stored workflow definition. Templates have no owner; user copies point
// back at their template through ParentChatflowID.
type Chatflow struct {
	ID               string  `db:"id"`
	Name             string  `db:"name"`
	Description      string  `db:"description"`
	FlowData         string  `db:"flow_data"`
	Deployed         bool    `db:"deployed"`
	IsPublic         bool    `db:"is_public"`
	Visibility       Tags    `db:"visibility"`
	Version          int     `db:"version"`
	Category         string  `db:"category"`
	Type             string  `db:"type"`
	UserID           *string `db:"user_id"`
	OrganizationID   *string `db:"organization_id"`
	ParentChatflowID *string `db:"parent_chatflow_id"`
}

func (c Chatflow) Ownerless() bool {
	return c.UserID == nil
}

// Tags is a visibility tag set stored as a comma separated column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	return strings.Join(t, ","), nil
}

func (t *Tags) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan tags: unsupported type %T", src)
	}
	*t = nil
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*t = append(*t, part)
		}
	}
	return nil
}

func (t Tags) Contains(tag string) bool {
	for _, candidate := range t {
		if candidate == tag {
			return true
		}
	}
	return false
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
