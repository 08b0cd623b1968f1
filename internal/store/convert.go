package store

import (
	"github.com/nextdotid/relation-server-go/internal/domain"
)

// FromIdentity builds the upsert-operator-tagged attribute map for an
// Identity vertex (spec §4.1's worked example: uuid/created_at/
// platform/identity are write-once, updated_at is monotone, and the
// rest overwrite).
func FromIdentity(i *domain.Identity) VertexUpsert {
	attrs := map[string]Attr{
		"uuid":         {Value: i.UUID.String(), Op: OpIgnoreIfExists},
		"platform":     {Value: string(i.Platform), Op: OpIgnoreIfExists},
		"identity":     {Value: i.Identity, Op: OpIgnoreIfExists},
		"added_at":     {Value: i.AddedAt, Op: OpIgnoreIfExists},
		"uid":          {Value: i.Uid, Op: OpDefault},
		"display_name": {Value: i.DisplayName, Op: OpDefault},
		"profile_url":  {Value: i.ProfileURL, Op: OpDefault},
		"avatar_url":   {Value: i.AvatarURL, Op: OpDefault},
		"updated_at":   {Value: i.UpdatedAt, Op: OpMax},
	}
	if i.CreatedAt != nil {
		attrs["created_at"] = Attr{Value: *i.CreatedAt, Op: OpIgnoreIfExists}
	}
	return VertexUpsert{VertexType: domain.VertexTypeIdentity, ID: i.PrimaryKey(), Attrs: attrs}
}

func FromContract(c *domain.Contract) VertexUpsert {
	return VertexUpsert{
		VertexType: domain.VertexTypeContract,
		ID:         c.PrimaryKey(),
		Attrs: map[string]Attr{
			"uuid":       {Value: c.UUID.String(), Op: OpIgnoreIfExists},
			"category":   {Value: string(c.Category), Op: OpIgnoreIfExists},
			"chain":      {Value: string(c.Chain), Op: OpIgnoreIfExists},
			"address":    {Value: c.Address, Op: OpIgnoreIfExists},
			"symbol":     {Value: c.Symbol, Op: OpDefault},
			"updated_at": {Value: c.UpdatedAt, Op: OpMax},
		},
	}
}

func FromProof(p *domain.Proof) EdgeUpsert {
	attrs := map[string]Attr{
		"uuid":       {Value: p.UUID.String(), Op: OpIgnoreIfExists},
		"source":     {Value: string(p.Source), Op: OpIgnoreIfExists},
		"fetcher":    {Value: string(p.Fetcher), Op: OpIgnoreIfExists},
		"record_id":  {Value: p.RecordID, Op: OpDefault},
		"updated_at": {Value: p.UpdatedAt, Op: OpMax},
	}
	if p.CreatedAt != nil {
		attrs["created_at"] = Attr{Value: *p.CreatedAt, Op: OpIgnoreIfExists}
	}
	return EdgeUpsert{
		EdgeType:      domain.EdgeTypeProof,
		From:          p.From,
		To:            p.To,
		Discriminator: p.Discriminator(),
		Attrs:         attrs,
	}
}

func FromHold(h *domain.Hold) EdgeUpsert {
	attrs := map[string]Attr{
		"uuid":        {Value: h.UUID.String(), Op: OpIgnoreIfExists},
		"source":      {Value: string(h.Source), Op: OpIgnoreIfExists},
		"fetcher":     {Value: string(h.Fetcher), Op: OpIgnoreIfExists},
		"id":          {Value: h.ID, Op: OpIgnoreIfExists},
		"transaction": {Value: h.Transaction, Op: OpDefault},
		"updated_at":  {Value: h.UpdatedAt, Op: OpMax},
	}
	if h.CreatedAt != nil {
		attrs["created_at"] = Attr{Value: *h.CreatedAt, Op: OpIgnoreIfExists}
	}
	if h.ExpiredAt != nil {
		attrs["expired_at"] = Attr{Value: *h.ExpiredAt, Op: OpDefault}
	}
	return EdgeUpsert{
		EdgeType:      domain.EdgeTypeHold,
		From:          h.From,
		To:            h.To,
		Discriminator: h.Discriminator(),
		Attrs:         attrs,
	}
}

func FromResolve(r *domain.Resolve) EdgeUpsert {
	return EdgeUpsert{
		EdgeType:      domain.EdgeTypeResolve,
		From:          r.From,
		To:            r.To,
		Discriminator: r.Discriminator(),
		Attrs: map[string]Attr{
			"uuid":       {Value: r.UUID.String(), Op: OpIgnoreIfExists},
			"source":     {Value: string(r.Source), Op: OpIgnoreIfExists},
			"fetcher":    {Value: string(r.Fetcher), Op: OpIgnoreIfExists},
			"system":     {Value: string(r.System), Op: OpIgnoreIfExists},
			"name":       {Value: r.Name, Op: OpIgnoreIfExists},
			"reverse":    {Value: r.Reverse, Op: OpDefault},
			"updated_at": {Value: r.UpdatedAt, Op: OpMax},
		},
	}
}
