package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hrplatform/docingest/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

type companyJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func companyToJSON(c *domain.Company) companyJSON {
	return companyJSON{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

type apiKeyJSON struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Revoked   bool       `json:"revoked"`
	Token     string     `json:"token,omitempty"`
}

func apiKeyToJSON(k *domain.APIKey) apiKeyJSON {
	return apiKeyJSON{
		ID:        k.ID,
		CompanyID: k.CompanyID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
		Revoked:   k.IsRevoked(),
	}
}

func keyStatus(k *domain.APIKey) string {
	if k.IsRevoked() {
		return "revoked"
	}
	return "active"
}
