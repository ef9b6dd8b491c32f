package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var dealProperties = []string{
	"dealname",
	"amount",
	"dealstage",
	"closedate",
	"createdate",
	"hs_lastmodifieddate",
	"hs_next_step",
	"description",
	"hs_time_in_dealstage",
}

// RemoteDeal is a deal as the CRM returns it, with inline association stubs
// when the listing asked for them.
type RemoteDeal struct {
	ID           string                     `json:"id"`
	Properties   DealProperties             `json:"properties"`
	Associations map[string]AssociationList `json:"associations"`
}

// DealProperties carries the raw string-typed property bag. Amount and the
// date fields stay strings here; the sync layer parses them.
type DealProperties struct {
	Name         string `json:"dealname"`
	Amount       string `json:"amount"`
	Stage        string `json:"dealstage"`
	CloseDate    string `json:"closedate"`
	CreateDate   string `json:"createdate"`
	LastModified string `json:"hs_lastmodifieddate"`
	NextStep     string `json:"hs_next_step"`
	Description  string `json:"description"`
	TimeInStage  string `json:"hs_time_in_dealstage"`
}

// AssociationList holds the inline association stubs attached to a listed deal.
type AssociationList struct {
	Results []AssociationStub `json:"results"`
}

// AssociationStub identifies an associated object without its properties.
type AssociationStub struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type dealPage struct {
	Results []RemoteDeal `json:"results"`
}

// ListDeals fetches up to limit deals with the property set the sync needs,
// asking the CRM to inline company and contact association stubs.
func (c *Client) ListDeals(ctx context.Context, token string, limit int) ([]RemoteDeal, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("properties", strings.Join(dealProperties, ","))
	q.Set("associations", "companies,contacts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBaseURL+"/crm/v3/objects/deals?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page dealPage
	if err := c.doJSON(req, token, "list deals", &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Company is the slice of a company object the sync cares about.
type Company struct {
	ID   string
	Name string
}

// Contact is the slice of a contact object the sync cares about.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// DisplayName renders a contact the way the deal metadata stores it: full
// name when present, email otherwise.
func (p Contact) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return p.Email
}

type batchReadRequest struct {
	Properties []string     `json:"properties"`
	Inputs     []batchInput `json:"inputs"`
}

type batchInput struct {
	ID string `json:"id"`
}

type batchReadResponse struct {
	Results []struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	} `json:"results"`
}

// BatchReadCompanies resolves company ids to names, chunking requests so no
// single call exceeds batchSize ids.
func (c *Client) BatchReadCompanies(ctx context.Context, token string, ids []string, batchSize int) (map[string]Company, error) {
	out := make(map[string]Company, len(ids))
	err := c.batchRead(ctx, token, "companies", []string{"name"}, ids, batchSize,
		func(id string, props map[string]string) {
			out[id] = Company{ID: id, Name: props["name"]}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchReadContacts resolves contact ids to name and email, chunked like
// BatchReadCompanies.
func (c *Client) BatchReadContacts(ctx context.Context, token string, ids []string, batchSize int) (map[string]Contact, error) {
	out := make(map[string]Contact, len(ids))
	err := c.batchRead(ctx, token, "contacts", []string{"firstname", "lastname", "email"}, ids, batchSize,
		func(id string, props map[string]string) {
			out[id] = Contact{
				ID:        id,
				FirstName: props["firstname"],
				LastName:  props["lastname"],
				Email:     props["email"],
			}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) batchRead(ctx context.Context, token, objectType string, properties, ids []string, batchSize int, collect func(id string, props map[string]string)) error {
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		body := batchReadRequest{Properties: properties}
		for _, id := range chunk {
			body.Inputs = append(body.Inputs, batchInput{ID: id})
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.apiBaseURL+"/crm/v3/objects/"+objectType+"/batch/read", bytes.NewReader(payload))
		if err != nil {
			return err
		}

		var resp batchReadResponse
		if err := c.doJSON(req, token, "batch read "+objectType, &resp); err != nil {
			return err
		}
		for _, r := range resp.Results {
			collect(r.ID, r.Properties)
		}
	}
	return nil
}

// GetCompany reads a single company. Used as the fallback when a batch read
// fails and the sync degrades to per-object lookups.
func (c *Client) GetCompany(ctx context.Context, token, id string) (Company, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBaseURL+"/crm/v3/objects/companies/"+url.PathEscape(id)+"?properties=name", nil)
	if err != nil {
		return Company{}, err
	}
	var resp struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	}
	if err := c.doJSON(req, token, "get company", &resp); err != nil {
		return Company{}, err
	}
	return Company{ID: resp.ID, Name: resp.Properties["name"]}, nil
}

// GetContact reads a single contact, the per-object fallback for contacts.
func (c *Client) GetContact(ctx context.Context, token, id string) (Contact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBaseURL+"/crm/v3/objects/contacts/"+url.PathEscape(id)+"?properties=firstname,lastname,email", nil)
	if err != nil {
		return Contact{}, err
	}
	var resp struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	}
	if err := c.doJSON(req, token, "get contact", &resp); err != nil {
		return Contact{}, err
	}
	return Contact{
		ID:        resp.ID,
		FirstName: resp.Properties["firstname"],
		LastName:  resp.Properties["lastname"],
		Email:     resp.Properties["email"],
	}, nil
}

// Association is one labeled edge from the v4 associations endpoint.
type Association struct {
	ToObjectID string
	Labels     []string
}

type associationsResponse struct {
	Results []struct {
		ToObjectID       json.Number `json:"toObjectId"`
		AssociationTypes []struct {
			Label string `json:"label"`
		} `json:"associationTypes"`
	} `json:"results"`
}

// ListAssociations fetches the labeled associations from one deal to the
// given object type. Only needed when a listed deal carries more than one
// stub and the primary must be identified.
func (c *Client) ListAssociations(ctx context.Context, token, dealID, toObjectType string) ([]Association, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBaseURL+"/crm/v4/objects/deals/"+url.PathEscape(dealID)+"/associations/"+url.PathEscape(toObjectType), nil)
	if err != nil {
		return nil, err
	}

	var resp associationsResponse
	if err := c.doJSON(req, token, "list associations", &resp); err != nil {
		return nil, err
	}

	out := make([]Association, 0, len(resp.Results))
	for _, r := range resp.Results {
		a := Association{ToObjectID: r.ToObjectID.String()}
		for _, t := range r.AssociationTypes {
			if t.Label != "" {
				a.Labels = append(a.Labels, t.Label)
			}
		}
		out = append(out, a)
	}
	return out, nil
}
