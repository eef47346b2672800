package zeroex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/orderarb/types"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func testOrder() *types.Order {
	return &types.Order{
		MakerAddress:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		FeeRecipientAddress:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		MakerAssetAmount:      big.NewInt(2000),
		TakerAssetAmount:      big.NewInt(1000),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(0),
		ExpirationTimeSeconds: big.NewInt(1700000000),
		Salt:                  big.NewInt(42),
		MakerAssetData:        EncodeERC20AssetData(dai),
		TakerAssetData:        EncodeERC20AssetData(weth),
		MakerFeeAssetData:     []byte{},
		TakerFeeAssetData:     []byte{},
		Signature:             common.FromHex("0x1b2c3d"),
	}
}

func TestERC20AssetData(t *testing.T) {
	data := EncodeERC20AssetData(weth)
	assert.Equal(t, "0xf47261b0000000000000000000000000c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", hexutil.Encode(data))

	token, err := DecodeERC20AssetData(data)
	require.NoError(t, err)
	assert.Equal(t, weth, token)
}

func TestDecodeERC20AssetDataRejectsOtherLayouts(t *testing.T) {
	valid := EncodeERC20AssetData(dai)

	badProxy := append([]byte{}, valid...)
	badProxy[0] = 0x02

	dirtyPadding := append([]byte{}, valid...)
	dirtyPadding[5] = 0x01

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:30]},
		{name: "trailing_bytes", data: append(append([]byte{}, valid...), 0x00)},
		{name: "erc721_proxy", data: badProxy},
		{name: "dirty_padding", data: dirtyPadding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeERC20AssetData(tt.data)
			require.ErrorIs(t, err, ErrUnknownAssetData)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := testOrder()
	b := testOrder()

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb, "identical content must hash identically")

	b.Salt = big.NewInt(43)
	fb, err = Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	c := testOrder()
	c.Signature = common.FromHex("0x1b2c3e")
	fc, err := Fingerprint(c)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestEncodeFillOrder(t *testing.T) {
	order := testOrder()

	data, err := EncodeFillOrder(order, order.TakerAssetAmount, order.Signature)
	require.NoError(t, err)

	method := ExchangeABI.Methods["fillOrder"]
	assert.Equal(t, method.ID, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)

	tuple := *abi.ConvertType(args[0], new(OrderTuple)).(*OrderTuple)
	assert.Equal(t, order.MakerAddress, tuple.MakerAddress)
	assert.Equal(t, order.TakerAssetAmount.String(), tuple.TakerAssetAmount.String())
	assert.Equal(t, order.MakerAssetData, tuple.MakerAssetData)
	assert.Equal(t, "1000", args[1].(*big.Int).String())
	assert.Equal(t, order.Signature, args[2].([]byte))

	_, err = EncodeFillOrder(order, big.NewInt(0), order.Signature)
	require.Error(t, err)
}
