package syncer

import (
	"context"
	"strings"

	"github.com/dealguard/dealguard/internal/hubspot"
)

// collectIDs gathers the distinct ids of one association kind across all
// fetched deals, preserving first-seen order so batch requests are stable.
func collectIDs(deals []hubspot.RemoteDeal, kind string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range deals {
		for _, stub := range d.Associations[kind].Results {
			if stub.ID == "" || seen[stub.ID] {
				continue
			}
			seen[stub.ID] = true
			ids = append(ids, stub.ID)
		}
	}
	return ids
}

// stubIDs returns the distinct association ids on a single deal. The CRM
// lists the same object once per association type, so duplicates are common.
func stubIDs(d hubspot.RemoteDeal, kind string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, stub := range d.Associations[kind].Results {
		if stub.ID == "" || seen[stub.ID] {
			continue
		}
		seen[stub.ID] = true
		ids = append(ids, stub.ID)
	}
	return ids
}

// resolveAssociated picks which associated object a deal's metadata should
// name. Zero candidates means no value. One candidate is taken directly, no
// extra call. More than one forces a trip to the labeled associations
// endpoint to find the one marked primary; when no label matches, or the
// endpoint fails, the first candidate wins so the sync still makes progress.
func (s *Syncer) resolveAssociated(ctx context.Context, token string, d hubspot.RemoteDeal, kind string) string {
	ids := stubIDs(d, kind)
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return ids[0]
	}

	assocs, err := s.crm.ListAssociations(ctx, token, d.ID, kind)
	if err != nil {
		s.logger.WarnWithContext(ctx, "association lookup failed, using first candidate",
			"deal_id", d.ID, "kind", kind, "error", err.Error())
		return ids[0]
	}

	for _, a := range assocs {
		for _, label := range a.Labels {
			if strings.EqualFold(label, "primary") {
				return a.ToObjectID
			}
		}
	}
	if len(assocs) > 0 {
		return assocs[0].ToObjectID
	}
	return ids[0]
}

func (s *Syncer) resolveCompany(ctx context.Context, token string, d hubspot.RemoteDeal, companies map[string]hubspot.Company) string {
	id := s.resolveAssociated(ctx, token, d, "companies")
	if id == "" {
		return ""
	}
	return companies[id].Name
}

func (s *Syncer) resolveContact(ctx context.Context, token string, d hubspot.RemoteDeal, contacts map[string]hubspot.Contact) string {
	id := s.resolveAssociated(ctx, token, d, "contacts")
	if id == "" {
		return ""
	}
	return contacts[id].DisplayName()
}
