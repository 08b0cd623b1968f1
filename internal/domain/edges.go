package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Proof is an edge asserting that upstream `Source` witnessed that two
// Identity vertices belong to the same owner.
//
// Discriminator: the (From, To, Source) triple. Upsert is idempotent
// on that key (spec §3, Invariants).
type Proof struct {
	UUID      uuid.UUID
	From      string // Identity.PrimaryKey()
	To        string // Identity.PrimaryKey()
	Source    DataSource
	Fetcher   DataFetcher
	RecordID  string
	CreatedAt *time.Time
	UpdatedAt time.Time
}

const EdgeTypeProof = "Proof_Forward"

func (p Proof) Discriminator() string {
	return fmt.Sprintf("%s|%s|%s", p.From, p.To, p.Source)
}

func NewProof(from, to string, source DataSource, fetcher DataFetcher, now time.Time) *Proof {
	return &Proof{
		UUID:      uuid.New(),
		From:      from,
		To:        to,
		Source:    source,
		Fetcher:   fetcher,
		UpdatedAt: now,
	}
}

// Hold is an edge asserting an Identity owns a concrete holding — an
// ENS name, an NFT token ID, or (for non-chain handles) another
// Identity such as a Lens profile.
//
// Discriminator: (From, To, Source, ID). From is the owning
// Identity.PrimaryKey(); To is a Contract.PrimaryKey() for NFT
// ownership, or an Identity.PrimaryKey() for domain-handle ownership.
type Hold struct {
	UUID        uuid.UUID
	From        string
	To          string
	Source      DataSource
	Fetcher     DataFetcher
	ID          string // the ENS name or token ID
	Transaction string
	CreatedAt   *time.Time
	UpdatedAt   time.Time
	ExpiredAt   *time.Time
}

const EdgeTypeHold = "Hold"

func (h Hold) Discriminator() string {
	return fmt.Sprintf("%s|%s|%s|%s", h.From, h.To, h.Source, h.ID)
}

func NewHold(from, to string, source DataSource, fetcher DataFetcher, id string, now time.Time) *Hold {
	return &Hold{
		UUID:      uuid.New(),
		From:      from,
		To:        to,
		Source:    source,
		Fetcher:   fetcher,
		ID:        id,
		UpdatedAt: now,
	}
}

// Resolve is a directed edge mapping a name to an Identity. Two senses
// coexist (spec §3):
//
//   - forward:  Contract(ENS) -> Identity(Ethereum), "this name resolves to this wallet"
//   - reverse:  Identity(Ethereum) -> Identity(domain), Reverse=true, "this is the wallet's primary domain"
//
// Discriminator: (From, To, Source, System, Name).
type Resolve struct {
	UUID      uuid.UUID
	From      string
	To        string
	Source    DataSource
	Fetcher   DataFetcher
	System    DomainNameSystem
	Name      string
	Reverse   bool
	UpdatedAt time.Time
}

const EdgeTypeResolve = "Resolve"

func (r Resolve) Discriminator() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", r.From, r.To, r.Source, r.System, r.Name)
}

func NewResolve(from, to string, source DataSource, fetcher DataFetcher, system DomainNameSystem, name string, reverse bool, now time.Time) *Resolve {
	return &Resolve{
		UUID:      uuid.New(),
		From:      from,
		To:        to,
		Source:    source,
		Fetcher:   fetcher,
		System:    system,
		Name:      name,
		Reverse:   reverse,
		UpdatedAt: now,
	}
}
