package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

const (
	DefaultURL      = "https://api.0x.org"
	orderbookPath   = "/sra/v3/orderbook"
	maxErrorBodyLen = 512
)

// NetworkError reports a failed or unsuccessful order book request.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("orderbook %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("orderbook %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL   string
	PerPage   int
	MaxPages  int
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	// WaitTimeout bounds the wait for a rate limit token. Zero waits as
	// long as ctx allows.
	WaitTimeout time.Duration
}

// Client reads resting bids from a 0x standard relayer API.
type Client struct {
	baseURL     string
	perPage     int
	maxPages    int
	httpClient  *http.Client
	limiter     *rate.Limiter
	waitTimeout time.Duration
	logger      *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("orderbook url parse %q: %w", base, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("orderbook url must be http(s), got %q", base)
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		baseURL:     base,
		perPage:     cfg.PerPage,
		maxPages:    cfg.MaxPages,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		waitTimeout: cfg.WaitTimeout,
		logger:      logger,
	}, nil
}

// Fetch returns the bids of the (base, quote) book. Bids are orders whose
// maker sells the quote asset for the base asset.
func (c *Client) Fetch(ctx context.Context, base, quote common.Address) ([]types.OrderRecord, error) {
	var records []types.OrderRecord

	for page := 1; page <= c.maxPages; page++ {
		resp, err := c.fetchPage(ctx, base, quote, page)
		if err != nil {
			return nil, err
		}

		for i, raw := range resp.Bids.Records {
			rec, err := raw.toRecord()
			if err != nil {
				return nil, &NetworkError{Op: "decode", Err: fmt.Errorf("page %d record %d: %w", page, i, err)}
			}
			records = append(records, rec)
		}

		perPage := resp.Bids.PerPage
		if perPage <= 0 {
			perPage = c.perPage
		}
		if len(resp.Bids.Records) == 0 || page*perPage >= resp.Bids.Total {
			break
		}
	}

	c.logger.Debug("Fetched order book",
		zap.String("base", base.Hex()),
		zap.String("quote", quote.Hex()),
		zap.Int("bids", len(records)))

	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, base, quote common.Address, page int) (*orderbookResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, &NetworkError{Op: "rate limit", Err: err}
	}

	q := url.Values{}
	q.Set("baseAssetData", hexutil.Encode(zeroex.EncodeERC20AssetData(base)))
	q.Set("quoteAssetData", hexutil.Encode(zeroex.EncodeERC20AssetData(quote)))
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(c.perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+orderbookPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &NetworkError{Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "get", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyLen))
		return nil, &NetworkError{
			Op:         "get",
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	var out orderbookResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, &NetworkError{Op: "decode", Err: err}
	}
	return &out, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.waitTimeout <= 0 {
		return c.limiter.Wait(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()
	return c.limiter.Wait(waitCtx)
}

type orderbookResponse struct {
	Bids paginatedRecords `json:"bids"`
	Asks paginatedRecords `json:"asks"`
}

type paginatedRecords struct {
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"perPage"`
	Records []apiRecord `json:"records"`
}

type apiRecord struct {
	Order    *apiOrder   `json:"order"`
	MetaData apiMetaData `json:"metaData"`
}

type apiOrder struct {
	MakerAddress          common.Address        `json:"makerAddress"`
	TakerAddress          common.Address        `json:"takerAddress"`
	FeeRecipientAddress   common.Address        `json:"feeRecipientAddress"`
	SenderAddress         common.Address        `json:"senderAddress"`
	MakerAssetAmount      *math.HexOrDecimal256 `json:"makerAssetAmount"`
	TakerAssetAmount      *math.HexOrDecimal256 `json:"takerAssetAmount"`
	MakerFee              *math.HexOrDecimal256 `json:"makerFee"`
	TakerFee              *math.HexOrDecimal256 `json:"takerFee"`
	ExpirationTimeSeconds *math.HexOrDecimal256 `json:"expirationTimeSeconds"`
	Salt                  *math.HexOrDecimal256 `json:"salt"`
	MakerAssetData        hexutil.Bytes         `json:"makerAssetData"`
	TakerAssetData        hexutil.Bytes         `json:"takerAssetData"`
	MakerFeeAssetData     hexutil.Bytes         `json:"makerFeeAssetData"`
	TakerFeeAssetData     hexutil.Bytes         `json:"takerFeeAssetData"`
	Signature             hexutil.Bytes         `json:"signature"`
}

type apiMetaData struct {
	OrderHash                         common.Hash           `json:"orderHash"`
	RemainingFillableTakerAssetAmount *math.HexOrDecimal256 `json:"remainingFillableTakerAssetAmount"`
}

func (r apiRecord) toRecord() (types.OrderRecord, error) {
	if r.Order == nil {
		return types.OrderRecord{}, fmt.Errorf("missing order")
	}
	o := r.Order
	if o.MakerAssetAmount == nil || o.TakerAssetAmount == nil {
		return types.OrderRecord{}, fmt.Errorf("order without asset amounts")
	}

	order := &types.Order{
		MakerAddress:          o.MakerAddress,
		TakerAddress:          o.TakerAddress,
		FeeRecipientAddress:   o.FeeRecipientAddress,
		SenderAddress:         o.SenderAddress,
		MakerAssetAmount:      toBig(o.MakerAssetAmount),
		TakerAssetAmount:      toBig(o.TakerAssetAmount),
		MakerFee:              toBig(o.MakerFee),
		TakerFee:              toBig(o.TakerFee),
		ExpirationTimeSeconds: toBig(o.ExpirationTimeSeconds),
		Salt:                  toBig(o.Salt),
		MakerAssetData:        o.MakerAssetData,
		TakerAssetData:        o.TakerAssetData,
		MakerFeeAssetData:     o.MakerFeeAssetData,
		TakerFeeAssetData:     o.TakerFeeAssetData,
		Signature:             o.Signature,
	}

	remaining := toBig(r.MetaData.RemainingFillableTakerAssetAmount)
	if r.MetaData.RemainingFillableTakerAssetAmount == nil {
		remaining = new(big.Int).Set(order.TakerAssetAmount)
	}

	return types.OrderRecord{
		Order: order,
		Metadata: types.OrderMetadata{
			OrderHash:                         r.MetaData.OrderHash,
			RemainingFillableTakerAssetAmount: remaining,
		},
	}, nil
}

func toBig(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}
