package domain

// DataSource names the origin of a claim — who upstream witnessed it.
type DataSource string

const (
	DataSourceSybilList DataSource = "sybil_list"
	DataSourceRss3      DataSource = "rss3"
	DataSourceTheGraph  DataSource = "the_graph"
	DataSourceKnn3      DataSource = "knn3"
	DataSourceKeybase   DataSource = "keybase"
	DataSourceLens      DataSource = "lens"
	DataSourceDotbit    DataSource = "dotbit"
	DataSourceFarcaster DataSource = "farcaster"
)

func AllDataSources() []DataSource {
	return []DataSource{
		DataSourceSybilList, DataSourceRss3, DataSourceTheGraph,
		DataSourceKnn3, DataSourceKeybase, DataSourceLens,
		DataSourceDotbit, DataSourceFarcaster,
	}
}

// DataFetcher names the adapter that extracted a claim. It can differ
// from DataSource when one adapter aggregates several upstream
// sources behind a single fetch.
type DataFetcher string

const (
	DataFetcherSybilList DataFetcher = "sybil_list"
	DataFetcherRss3      DataFetcher = "rss3"
	DataFetcherTheGraph  DataFetcher = "the_graph"
	DataFetcherEthereum  DataFetcher = "ethereum"
	DataFetcherENS       DataFetcher = "ens"
	DataFetcherLens      DataFetcher = "lens"
	DataFetcherDotbit    DataFetcher = "dotbit"
	DataFetcherFarcaster DataFetcher = "farcaster"
)

// ContractCategory enumerates the kinds of contracts the graph tracks
// as vertices.
type ContractCategory string

const (
	ContractCategoryENS     ContractCategory = "ENS"
	ContractCategoryERC721  ContractCategory = "ERC721"
	ContractCategoryERC1155 ContractCategory = "ERC1155"
	ContractCategoryPoap    ContractCategory = "POAP"
	ContractCategoryUnknown ContractCategory = "unknown"
)

// Chain enumerates the chains a Contract vertex may live on.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainBSC      Chain = "bsc"
	ChainSolana   Chain = "solana"
	ChainUnknown  Chain = "unknown"
)

// DomainNameSystem enumerates the name systems a Resolve edge can
// belong to. It preserves the original casing of ENS/SNS per the
// enum's serde rename (spec §6).
type DomainNameSystem string

const (
	DNSENS                DomainNameSystem = "ENS"
	DNSDotbit             DomainNameSystem = "dotbit"
	DNSLens               DomainNameSystem = "lens"
	DNSUnstoppableDomains DomainNameSystem = "unstoppabledomains"
	DNSSpaceId            DomainNameSystem = "space_id"
	DNSCrossbell          DomainNameSystem = "crossbell"
	DNSSNS                DomainNameSystem = "SNS"
	DNSGenome             DomainNameSystem = "genome"
	DNSUnknown            DomainNameSystem = "unknown"
)

func AllNameSystems() []DomainNameSystem {
	return []DomainNameSystem{
		DNSENS, DNSDotbit, DNSLens, DNSUnstoppableDomains,
		DNSSpaceId, DNSCrossbell, DNSSNS, DNSGenome,
	}
}

// Platform maps a DomainNameSystem back to the Platform that owns its
// namespace, ported from the original's
// `impl From<DomainNameSystem> for Platform` (graph/edge/resolve.rs).
func (d DomainNameSystem) Platform() Platform {
	switch d {
	case DNSDotbit:
		return PlatformDotbit
	case DNSUnstoppableDomains:
		return PlatformUnstoppableDomains
	case DNSLens:
		return PlatformLens
	case DNSSpaceId:
		return PlatformSpaceId
	case DNSCrossbell:
		return PlatformCrossbell
	case DNSSNS:
		return PlatformSNS
	case DNSGenome:
		return PlatformGenome
	case DNSENS:
		return PlatformEthereum
	default:
		return PlatformUnknown
	}
}
