package trace

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// formatAddress pads a stack value with its leading zeros stripped back to a
// full 20 byte address, keeping the low 20 bytes of longer words.
func formatAddress(addr string) string {
	hex := strings.TrimPrefix(addr, "0x")

	if len(hex) > 40 {
		hex = hex[len(hex)-40:]
	}

	return fmt.Sprintf("0x%040s", hex)
}

// ParseAddress parses an address given as a stack word or a hex string.
func ParseAddress(s string) (common.Address, bool) {
	formatted := formatAddress(strings.ToLower(strings.TrimSpace(s)))
	if !common.IsHexAddress(formatted) {
		return common.Address{}, false
	}

	return common.HexToAddress(formatted), true
}

// lastPrecompile is the highest precompile address in Prague.
const lastPrecompile = 0x11

// IsPrecompile reports whether addr is a precompiled contract.
func IsPrecompile(addr common.Address) bool {
	for _, b := range addr[:common.AddressLength-1] {
		if b != 0 {
			return false
		}
	}

	last := addr[common.AddressLength-1]

	return last >= 0x01 && last <= lastPrecompile
}
