package chainreg

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/hdmwallet/hdmcore/keychain"
	litecoinCfg "github.com/ltcsuite/ltcd/chaincfg"
)

// ErrUnknownNetwork is returned by ByName for names that are not registered.
var ErrUnknownNetwork = errors.New("unknown network")

// NetParams couples the chain parameters of a network with the BIP44 coin
// type used below m/44'.
type NetParams struct {
	*chaincfg.Params
	CoinType uint32
}

// BitcoinMainNetParams contains parameters specific to the current Bitcoin
// mainnet.
var BitcoinMainNetParams = NetParams{
	Params:   &chaincfg.MainNetParams,
	CoinType: keychain.CoinTypeBitcoin,
}

// BitcoinTestNetParams contains parameters specific to the 3rd version of the
// test network.
var BitcoinTestNetParams = NetParams{
	Params:   &chaincfg.TestNet3Params,
	CoinType: keychain.CoinTypeTestnet,
}

// BitcoinRegTestNetParams contains parameters specific to a local regtest
// network.
var BitcoinRegTestNetParams = NetParams{
	Params:   &chaincfg.RegressionNetParams,
	CoinType: keychain.CoinTypeTestnet,
}

// BitcoinSimNetParams contains parameters specific to the simulation test
// network.
var BitcoinSimNetParams = NetParams{
	Params:   &chaincfg.SimNetParams,
	CoinType: keychain.CoinTypeTestnet,
}

// BitcoinSigNetParams contains parameters specific to the default signet.
var BitcoinSigNetParams = NetParams{
	Params:   &chaincfg.SigNetParams,
	CoinType: keychain.CoinTypeTestnet,
}

// LitecoinMainNetParams contains the parameters specific to the current
// Litecoin mainnet, expressed as btcd parameters.
var LitecoinMainNetParams = NetParams{
	Params: applyLitecoinParams(
		"litecoin", &litecoinCfg.MainNetParams,
	),
	CoinType: keychain.CoinTypeLitecoin,
}

// LitecoinTestNetParams contains parameters specific to the 4th version of the
// litecoin test network.
var LitecoinTestNetParams = NetParams{
	Params: applyLitecoinParams(
		"litecoin-testnet4", &litecoinCfg.TestNet4Params,
	),
	CoinType: keychain.CoinTypeTestnet,
}

// applyLitecoinParams copies the magics that differ for litecoin onto a fresh
// set of btcd chain parameters. Only the parts that key encoding touches are
// carried over: address and WIF prefixes, extended key versions, network
// magic and genesis hash.
func applyLitecoinParams(name string,
	ltcParams *litecoinCfg.Params) *chaincfg.Params {

	params := chaincfg.MainNetParams
	params.Name = name
	params.Net = wire.BitcoinNet(ltcParams.Net)
	params.DefaultPort = ltcParams.DefaultPort
	params.Checkpoints = nil
	params.DNSSeeds = nil

	genesis := *params.GenesisHash
	copy(genesis[:], ltcParams.GenesisHash[:])
	params.GenesisHash = &genesis

	// Address encoding magics.
	params.PubKeyHashAddrID = ltcParams.PubKeyHashAddrID
	params.ScriptHashAddrID = ltcParams.ScriptHashAddrID
	params.PrivateKeyID = ltcParams.PrivateKeyID

	copy(params.HDPrivateKeyID[:], ltcParams.HDPrivateKeyID[:])
	copy(params.HDPublicKeyID[:], ltcParams.HDPublicKeyID[:])

	params.HDCoinType = ltcParams.HDCoinType

	return &params
}

var (
	registry = map[string]*NetParams{
		"mainnet":           &BitcoinMainNetParams,
		"testnet":           &BitcoinTestNetParams,
		"regtest":           &BitcoinRegTestNetParams,
		"simnet":            &BitcoinSimNetParams,
		"signet":            &BitcoinSigNetParams,
		"litecoin":          &LitecoinMainNetParams,
		"litecoin-testnet4": &LitecoinTestNetParams,
	}

	registerOnce sync.Once
)

// registerAltNets makes the litecoin parameters known to btcd's chaincfg so
// that address decoding and extended key version lookups accept them.
func registerAltNets() {
	registerOnce.Do(func() {
		for _, p := range []*NetParams{
			&LitecoinMainNetParams, &LitecoinTestNetParams,
		} {
			err := chaincfg.Register(p.Params)
			if err != nil &&
				!errors.Is(err, chaincfg.ErrDuplicateNet) {

				log.Errorf("Unable to register %v: %v",
					p.Name, err)
			}
		}
	})
}

// ByName looks up a network by its configuration name.
func ByName(name string) (*NetParams, error) {
	registerAltNets()

	params, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownNetwork,
			name, Names())
	}

	return params, nil
}

// All returns every registered network, for callers that need to try
// several, such as extended key decoding.
func All() []*chaincfg.Params {
	registerAltNets()

	names := Names()
	all := make([]*chaincfg.Params, 0, len(names))
	for _, name := range names {
		all = append(all, registry[name].Params)
	}

	return all
}

// Names returns the sorted list of registered network names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
