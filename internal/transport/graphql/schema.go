// Package graphql is the thin GraphQL projection over internal/query
// (spec §6), built with graph-gophers/graphql-go the way the rest of
// the domain stack favors a focused third-party library over a
// hand-rolled resolver dispatcher.
package graphql

const schema = `
	schema {
		query: Query
	}

	enum Platform {
		twitter
		ethereum
		ENS
		lens
		dotbit
		farcaster
		unstoppabledomains
		space_id
		solana
		SNS
		crossbell
		genome
	}

	enum DataSource {
		sybil_list
		rss3
		the_graph
		knn3
		keybase
		lens
		dotbit
		farcaster
	}

	enum ContractCategory {
		ENS
		ERC721
		ERC1155
		POAP
		unknown
	}

	type Identity {
		uuid: String!
		status: [String!]!
		platform: Platform!
		identity: String!
		uid: String
		displayName: String
		profileUrl: String
		avatarUrl: String
		createdAt: String
		addedAt: String!
		updatedAt: String!
		expiredAt: String
		reverse: Boolean
		neighbor(depth: Int = 1, reverse: Boolean): [Neighbor!]!
		neighborWithTraversal(depth: Int = 1): [EdgeUnion!]!
		identityGraph(reverse: Boolean): [EdgeUnion!]!
		reverseRecords: [String!]!
		ownedBy: Identity
		nft(category: [ContractCategory!], limit: Int = 20, offset: Int = 0): [Hold!]!
	}

	type Neighbor {
		identity: Identity!
		sources: [DataSource!]!
		reverse: Boolean
	}

	type Hold {
		uuid: String!
		from: String!
		to: String!
		source: DataSource!
		id: String!
		transaction: String
	}

	type Proof {
		uuid: String!
		from: String!
		to: String!
		source: DataSource!
		recordId: String
		updatedAt: String!
	}

	type ResolveEdge {
		uuid: String!
		from: String!
		to: String!
		source: DataSource!
		system: String!
		name: String!
		reverse: Boolean!
		updatedAt: String!
	}

	union EdgeUnion = Proof | Hold | ResolveEdge

	type ProofRecord {
		uuid: String!
		source: DataSource!
		recordId: String
		createdAt: String
		updatedAt: String!
		fetcher: String!
		from: Identity!
		to: Identity!
	}

	type EnsResolve {
		resolved: String
		owner: String
	}

	type DotbitResolve {
		owner: String
	}

	type Query {
		identity(platform: Platform!, identity: String!): Identity
		identities(platforms: [Platform!]!, identity: String!): [Identity!]!
		ens(name: String!): EnsResolve
		dotbit(name: String!): DotbitResolve
		proof(uuid: String!): ProofRecord
		prefetchProof: String!
		availablePlatforms: [Platform!]!
		availableUpstreams: [DataSource!]!
		availableNameSystem: [String!]!
	}
`
