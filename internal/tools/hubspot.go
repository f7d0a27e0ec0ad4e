package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"

	"github.com/tidwall/gjson"
)

// HubspotClient talks to the HubSpot CRM v3 REST API with the user's
// stored OAuth token. There is no official Go SDK; the surface we need
// is four endpoints, called directly.
type HubspotClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHubspotClient creates a client against the given base URL.
func NewHubspotClient(baseURL string) *HubspotClient {
	return &HubspotClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FindContact searches contacts by exact email. A miss is not an error;
// the result carries found=false.
func (c *HubspotClient) FindContact(ctx context.Context, user *model.User, email string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"filterGroups": []interface{}{
			map[string]interface{}{
				"filters": []interface{}{
					map[string]interface{}{
						"propertyName": "email",
						"operator":     "EQ",
						"value":        email,
					},
				},
			},
		},
		"properties": []string{"email", "firstname", "lastname"},
		"limit":      1,
	}

	resp, err := c.do(ctx, user, http.MethodPost, "/crm/v3/objects/contacts/search", body)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(resp, "results.0")
	if !first.Exists() {
		return map[string]interface{}{"found": false, "email": email}, nil
	}
	return map[string]interface{}{
		"found":      true,
		"contact_id": first.Get("id").String(),
		"email":      first.Get("properties.email").String(),
		"firstname":  first.Get("properties.firstname").String(),
		"lastname":   first.Get("properties.lastname").String(),
	}, nil
}

// CreateContact creates a contact from the email/firstname/lastname
// arguments.
func (c *HubspotClient) CreateContact(ctx context.Context, user *model.User, args map[string]interface{}) (map[string]interface{}, error) {
	resp, err := c.do(ctx, user, http.MethodPost, "/crm/v3/objects/contacts", map[string]interface{}{
		"properties": contactProperties(args),
	})
	if err != nil {
		return nil, err
	}

	contactID := gjson.GetBytes(resp, "id").String()
	logger.InfoCtx(ctx, "created hubspot contact %s for user %d", contactID, user.ID)
	return map[string]interface{}{
		"contact_id": contactID,
		"created":    true,
	}, nil
}

// UpdateContact patches the given properties on an existing contact.
func (c *HubspotClient) UpdateContact(ctx context.Context, user *model.User, contactID string, args map[string]interface{}) (map[string]interface{}, error) {
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s", contactID)
	resp, err := c.do(ctx, user, http.MethodPatch, path, map[string]interface{}{
		"properties": contactProperties(args),
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"contact_id": gjson.GetBytes(resp, "id").String(),
		"updated":    true,
	}, nil
}

// CreateNote attaches a note to a contact. Association type 202 is the
// HubSpot-defined note-to-contact association.
func (c *HubspotClient) CreateNote(ctx context.Context, user *model.User, contactID, noteBody string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"properties": map[string]interface{}{
			"hs_note_body": noteBody,
			"hs_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"associations": []interface{}{
			map[string]interface{}{
				"to": map[string]interface{}{"id": contactID},
				"types": []interface{}{
					map[string]interface{}{
						"associationCategory": "HUBSPOT_DEFINED",
						"associationTypeId":   202,
					},
				},
			},
		},
	}

	resp, err := c.do(ctx, user, http.MethodPost, "/crm/v3/objects/notes", body)
	if err != nil {
		return nil, err
	}

	noteID := gjson.GetBytes(resp, "id").String()
	logger.InfoCtx(ctx, "created hubspot note %s on contact %s for user %d", noteID, contactID, user.ID)
	return map[string]interface{}{
		"note_id":    noteID,
		"contact_id": contactID,
	}, nil
}

func (c *HubspotClient) do(ctx context.Context, user *model.User, method, path string, body interface{}) ([]byte, error) {
	token := user.HubspotAccessToken()
	if token == "" {
		return nil, fmt.Errorf("user %d has no hubspot oauth token", user.ID)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hubspot request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hubspot request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read hubspot response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("hubspot %s %s returned %d: %s", method, path, resp.StatusCode, gjson.GetBytes(data, "message").String())
	}
	return data, nil
}

func contactProperties(args map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{})
	for _, key := range []string{"email", "firstname", "lastname", "phone", "company"} {
		if v, ok := args[key].(string); ok && v != "" {
			props[key] = v
		}
	}
	return props
}
