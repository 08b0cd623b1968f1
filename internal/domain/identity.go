package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity is a vertex: a platform-scoped account or address.
//
// platform+identity is the store's composite primary key and MUST
// stay immutable across refetches (spec §3, Invariants); only
// DisplayName, AvatarURL, ProfileURL, Uid, and UpdatedAt may change.
type Identity struct {
	UUID        uuid.UUID
	Platform    Platform
	Identity    string
	Uid         string
	DisplayName string
	ProfileURL  string
	AvatarURL   string
	CreatedAt   *time.Time
	AddedAt     time.Time
	UpdatedAt   time.Time
}

// PrimaryKey is the store's vertex key: "{platform},{identity}".
func (i Identity) PrimaryKey() string {
	return fmt.Sprintf("%s,%s", i.Platform, i.Identity)
}

// VertexType names the store's vertex collection for Identity.
const VertexTypeIdentity = "Identities"

// NewIdentity fills in the fields that are ours to generate
// (UUID policy, added_at) on first observation of an identity.
func NewIdentity(platform Platform, identity string, now time.Time) *Identity {
	return &Identity{
		UUID:      uuid.New(),
		Platform:  platform,
		Identity:  identity,
		AddedAt:   now,
		UpdatedAt: now,
	}
}

// Contract is a vertex representing an on-chain contract (ENS
// registry, an NFT collection, a POAP drop, ...).
type Contract struct {
	UUID      uuid.UUID
	Category  ContractCategory
	Chain     Chain
	Address   string
	Symbol    string
	UpdatedAt time.Time
}

// PrimaryKey is the store's vertex key: "{chain},{address}".
func (c Contract) PrimaryKey() string {
	return fmt.Sprintf("%s,%s", c.Chain, c.Address)
}

const VertexTypeContract = "Contracts"

func NewContract(chain Chain, category ContractCategory, address string, now time.Time) *Contract {
	return &Contract{
		UUID:      uuid.New(),
		Chain:     chain,
		Category:  category,
		Address:   address,
		UpdatedAt: now,
	}
}
