package validate

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Address families the gateway knows how to check.
const (
	familyEVM  = "evm"
	familyTron = "tron"
	familyBTC  = "btc"
	familySOL  = "sol"
)

// networkFamilies maps normalized chain identifiers to an address family.
// Networks not listed here are accepted with any non-empty address.
var networkFamilies = map[string]string{
	"ETH":      familyEVM,
	"ETHEREUM": familyEVM,
	"ERC20":    familyEVM,
	"BSC":      familyEVM,
	"BEP20":    familyEVM,
	"BNB":      familyEVM,
	"POLYGON":  familyEVM,
	"MATIC":    familyEVM,
	"ARBITRUM": familyEVM,
	"OPTIMISM": familyEVM,
	"BASE":     familyEVM,
	"AVAX":     familyEVM,
	"TRON":     familyTron,
	"TRX":      familyTron,
	"TRC20":    familyTron,
	"BTC":      familyBTC,
	"BITCOIN":  familyBTC,
	"SOL":      familySOL,
	"SOLANA":   familySOL,
}

const (
	tronAddressLen    = 25 // 0x41 prefix + 20-byte hash + 4-byte checksum
	tronAddressPrefix = 0x41
	solPublicKeyLen   = 32
)

// NormalizeNetwork trims and upper-cases a chain identifier.
func NormalizeNetwork(network string) string {
	return strings.ToUpper(strings.TrimSpace(network))
}

// KnownNetwork reports whether addresses on network are format-checked.
func KnownNetwork(network string) bool {
	_, ok := networkFamilies[NormalizeNetwork(network)]
	return ok
}

// WalletAddress validates that addr is well-formed for the given network.
// Unknown networks accept any non-empty address.
func WalletAddress(network, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return &FieldError{Field: "walletAddress", Message: "walletAddress is required"}
	}

	family, ok := networkFamilies[NormalizeNetwork(network)]
	if !ok {
		slog.Debug("wallet address not format-checked for unknown network",
			"network", network,
		)
		return nil
	}

	var err error
	switch family {
	case familyEVM:
		err = validateEVM(addr)
	case familyTron:
		err = validateTron(addr)
	case familyBTC:
		err = validateBTC(addr)
	case familySOL:
		err = validateSOL(addr)
	}
	if err != nil {
		return &FieldError{Field: "walletAddress", Message: err.Error()}
	}
	return nil
}

// validateEVM checks the 0x + 40 hex chars format shared by all EVM chains.
func validateEVM(addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("invalid %s address %q: must start with 0x", "EVM", addr)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid EVM address %q: must match 0x + 40 hex characters", addr)
	}
	return nil
}

// validateTron decodes a base58check TRON address and verifies its prefix
// and double-SHA256 checksum.
func validateTron(addr string) error {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid TRON address %q: base58 decode failed: %w", addr, err)
	}
	if len(decoded) != tronAddressLen {
		return fmt.Errorf("invalid TRON address %q: decoded to %d bytes, expected %d", addr, len(decoded), tronAddressLen)
	}
	if decoded[0] != tronAddressPrefix {
		return fmt.Errorf("invalid TRON address %q: unexpected version byte 0x%02x", addr, decoded[0])
	}
	payload, checksum := decoded[:21], decoded[21:]
	if !bytes.Equal(chainhash.DoubleHashB(payload)[:4], checksum) {
		return fmt.Errorf("invalid TRON address %q: checksum mismatch", addr)
	}
	return nil
}

// validateBTC accepts mainnet and testnet addresses; the Core decides which
// network the invoice actually lives on.
func validateBTC(addr string) error {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params} {
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err == nil && decoded.IsForNet(params) {
			return nil
		}
	}
	return fmt.Errorf("invalid BTC address %q", addr)
}

// validateSOL decodes a base58 address and verifies it is exactly 32 bytes
// (ed25519 public key).
func validateSOL(addr string) error {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid SOL address %q: base58 decode failed: %w", addr, err)
	}
	if len(decoded) != solPublicKeyLen {
		return fmt.Errorf("invalid SOL address %q: decoded to %d bytes, expected %d", addr, len(decoded), solPublicKeyLen)
	}
	return nil
}
