// Package ens resolves ENS reverse records (the wallet's primary
// domain) by asking the ENS registry for the reverse node's resolver
// and then calling that resolver's name() over JSON-RPC, grounded on the teacher's
// accounts/abi-based contract-call idiom (consensus/oasys/contract_evm.go)
// adapted from an in-process EVM call to an out-of-process
// ethclient.Dial connection, the pattern the go-ethereum example repo
// itself uses in its own RPC-backed tests.
package ens

import (
	"context"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

const ensRegistryAddress = "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1"

const resolverABI = `[
	{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

// Fetcher resolves an Ethereum wallet's primary ENS name via its
// reverse record (the addr.reverse node), producing a reverse Resolve
// edge (spec §3).
type Fetcher struct {
	client      *ethclient.Client
	resolverAbi abi.ABI
}

func New(rpcURL string) (*Fetcher, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial ethereum rpc")
	}
	resolverAbi, err := abi.JSON(strings.NewReader(resolverABI))
	if err != nil {
		return nil, err
	}
	return &Fetcher{client: client, resolverAbi: resolverAbi}, nil
}

func (f *Fetcher) Name() domain.DataFetcher  { return domain.DataFetcherENS }
func (f *Fetcher) Source() domain.DataSource { return domain.DataSourceTheGraph }

func (f *Fetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}

func (f *Fetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	addr := common.HexToAddress(t.Identity)

	node := reverseNode(addr)

	resolverAddr, err := f.callAddress(ctx, common.HexToAddress(ensRegistryAddress), f.resolverAbi, "resolver", node)
	if err != nil || resolverAddr == (common.Address{}) {
		return upstream.Result{}, nil
	}

	name, err := f.callString(ctx, resolverAddr, f.resolverAbi, "name", node)
	if err != nil || name == "" {
		return upstream.Result{}, nil
	}

	now := time.Now()
	wallet := strings.ToLower(t.Identity)
	identity := *domain.NewIdentity(domain.PlatformEthereum, wallet, now)
	ensIdentity := *domain.NewIdentity(domain.PlatformENS, strings.ToLower(name), now)
	resolve := domain.NewResolve(identity.PrimaryKey(), ensIdentity.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherENS, domain.DNSENS, name, true, now)

	return upstream.Result{
		Identities: []domain.Identity{identity, ensIdentity},
		Resolves:   []domain.Resolve{*resolve},
	}, nil
}

// reverseNode computes the ENS namehash of "<addr-without-0x>.addr.reverse",
// the node the reverse registrar resolves a wallet's primary name under.
func reverseNode(addr common.Address) [32]byte {
	label := strings.ToLower(addr.Hex()[2:])
	return namehash(label + ".addr.reverse")
}

func namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = keccak256Of(append(node[:], keccakLabel(labels[i])[:]...))
	}
	return node
}

func keccakLabel(s string) [32]byte {
	return keccak256Of([]byte(s))
}

func keccak256Of(b []byte) [32]byte {
	h := crypto.Keccak256(b)
	var out [32]byte
	copy(out[:], h)
	return out
}

func (f *Fetcher) callAddress(ctx context.Context, to common.Address, contractAbi abi.ABI, method string, args ...any) (common.Address, error) {
	out, err := f.call(ctx, to, contractAbi, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	var addr common.Address
	if err := contractAbi.UnpackIntoInterface(&addr, method, out); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (f *Fetcher) callString(ctx context.Context, to common.Address, contractAbi abi.ABI, method string, args ...any) (string, error) {
	out, err := f.call(ctx, to, contractAbi, method, args...)
	if err != nil {
		return "", err
	}
	var name string
	if err := contractAbi.UnpackIntoInterface(&name, method, out); err != nil {
		return "", err
	}
	return name, nil
}

func (f *Fetcher) call(ctx context.Context, to common.Address, contractAbi abi.ABI, method string, args ...any) ([]byte, error) {
	input, err := contractAbi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: &to, Data: input}
	return f.client.CallContract(ctx, msg, nil)
}
