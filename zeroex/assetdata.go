package zeroex

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20ProxyID is the 4-byte id of the ERC20 asset proxy (bytes4(keccak256("ERC20Token(address)"))).
var ERC20ProxyID = [4]byte{0xf4, 0x72, 0x61, 0xb0}

// erc20AssetDataLen is the only layout accepted for ERC20 descriptors:
// proxy id, then the token address left-padded to 32 bytes.
const erc20AssetDataLen = 4 + 32

var ErrUnknownAssetData = errors.New("unknown asset data layout")

// EncodeERC20AssetData builds the descriptor the order book expects for a token.
func EncodeERC20AssetData(token common.Address) []byte {
	data := make([]byte, erc20AssetDataLen)
	copy(data[:4], ERC20ProxyID[:])
	copy(data[4:], common.LeftPadBytes(token.Bytes(), 32))
	return data
}

// DecodeERC20AssetData extracts the token address from an ERC20 descriptor.
// Anything that is not exactly the ERC20 layout is rejected rather than
// partially parsed.
func DecodeERC20AssetData(data []byte) (common.Address, error) {
	if len(data) != erc20AssetDataLen {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrUnknownAssetData, len(data))
	}
	if !bytes.Equal(data[:4], ERC20ProxyID[:]) {
		return common.Address{}, fmt.Errorf("%w: proxy id %x", ErrUnknownAssetData, data[:4])
	}
	padding := data[4 : 4+32-common.AddressLength]
	for _, b := range padding {
		if b != 0 {
			return common.Address{}, fmt.Errorf("%w: non-zero address padding", ErrUnknownAssetData)
		}
	}
	return common.BytesToAddress(data[4+32-common.AddressLength:]), nil
}
