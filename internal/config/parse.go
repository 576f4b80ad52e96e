package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseHash converts a 0x-prefixed hex string of at most 32 bytes into a left-padded hash.
func ParseHash(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	data, err := hexutil.Decode(input)
	if err != nil {
		// hexutil rejects odd lengths, which short ids like 0x5151f often have
		if len(input) > 2 && strings.HasPrefix(input, "0x") {
			data, err = hexutil.Decode("0x0" + input[2:])
		}
		if err != nil {
			return common.Hash{}, fmt.Errorf("invalid hash: %s", input)
		}
	}
	if len(data) == 0 || len(data) > 32 {
		return common.Hash{}, fmt.Errorf("invalid hash length: %s", input)
	}
	return common.BytesToHash(data), nil
}

// ParseHashes converts every non-empty input with ParseHash.
func ParseHashes(inputs []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		h, err := ParseHash(input)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// ParseTimestamp accepts unix seconds or RFC3339. Empty input is zero.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseUint(input, 10, 64); err == nil {
		return secs, nil
	}
	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: want unix seconds or RFC3339", input)
	}
	if tm.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %q is before 1970", input)
	}
	return uint64(tm.Unix()), nil
}
