package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/liquidity"
)

// DefaultFeedChannel is the Pub/Sub channel the upstream scanner publishes
// opportunities on.
const DefaultFeedChannel = "hedgerun:opportunities"

// opportunityMsg is the wire shape of one published opportunity. It is kept
// separate from domain.Opportunity so the feed protocol can evolve without
// leaking json tags into the domain.
type opportunityMsg struct {
	ID           string  `json:"id"`
	EventTitle   string  `json:"event_title"`
	TeamA        string  `json:"team_a"`
	TeamB        string  `json:"team_b"`
	BuyYesVenue  string  `json:"buy_yes_venue"`
	BuyNoVenue   string  `json:"buy_no_venue"`
	YesPrice     float64 `json:"yes_price"`
	NoPrice      float64 `json:"no_price"`
	TotalCost    float64 `json:"total_cost"`
	ROIAfterFees float64 `json:"roi_after_fees"`
	ArbType      string  `json:"arb_type"`
	Live         bool    `json:"live"`
	Confidence   string  `json:"confidence"`
	Executable   bool    `json:"executable"`
	PolyTokenID  string  `json:"poly_token_id"`
	PolySide     string  `json:"poly_side"`
	KalshiTicker string  `json:"kalshi_ticker"`
	KalshiSide   string  `json:"kalshi_side"`

	Liquidity *liquidityMsg `json:"liquidity,omitempty"`

	// Raw market data, published by scanners that leave profile building to
	// the consumer. Ignored when a liquidity profile is attached.
	PolyBook     *bookMsg `json:"poly_book,omitempty"`
	PolyVolume   float64  `json:"poly_volume,omitempty"`
	KalshiYesBid float64  `json:"kalshi_yes_bid,omitempty"`
	KalshiYesAsk float64  `json:"kalshi_yes_ask,omitempty"`
	KalshiVolume float64  `json:"kalshi_volume,omitempty"`

	FoundAt time.Time `json:"found_at"`
}

// bookMsg carries order-book depth as [price, size] pairs, best level first.
type bookMsg struct {
	Bids [][2]float64 `json:"bids"`
	Asks [][2]float64 `json:"asks"`
}

func (b *bookMsg) toDomain() *domain.OrderBookDepth {
	depth := &domain.OrderBookDepth{
		Bids: make([]domain.PriceLevel, 0, len(b.Bids)),
		Asks: make([]domain.PriceLevel, 0, len(b.Asks)),
	}
	for _, lvl := range b.Bids {
		depth.Bids = append(depth.Bids, domain.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range b.Asks {
		depth.Asks = append(depth.Asks, domain.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	return depth
}

type liquidityMsg struct {
	ContractsAtBest float64 `json:"contracts_at_best"`
	Contracts1Pct   float64 `json:"contracts_1pct"`
	Contracts2Pct   float64 `json:"contracts_2pct"`
	Contracts5Pct   float64 `json:"contracts_5pct"`
	DollarsAtBest   float64 `json:"dollars_at_best"`
	Dollars1Pct     float64 `json:"dollars_1pct"`
	Dollars2Pct     float64 `json:"dollars_2pct"`
	PolyContracts   float64 `json:"poly_contracts"`
	KalshiContracts float64 `json:"kalshi_contracts"`
	Bottleneck      string  `json:"bottleneck"`
	Score           float64 `json:"score"`
	DepthEstimated  bool    `json:"depth_estimated"`
}

func (m opportunityMsg) toDomain() domain.Opportunity {
	opp := domain.Opportunity{
		ID:           m.ID,
		EventTitle:   m.EventTitle,
		TeamA:        m.TeamA,
		TeamB:        m.TeamB,
		BuyYesVenue:  domain.Venue(m.BuyYesVenue),
		BuyNoVenue:   domain.Venue(m.BuyNoVenue),
		YesPrice:     m.YesPrice,
		NoPrice:      m.NoPrice,
		TotalCost:    m.TotalCost,
		ROIAfterFees: m.ROIAfterFees,
		ArbType:      m.ArbType,
		Live:         m.Live,
		Confidence:   domain.Confidence(m.Confidence),
		Executable:   m.Executable,
		PolyTokenID:  m.PolyTokenID,
		PolySide:     m.PolySide,
		KalshiTicker: m.KalshiTicker,
		KalshiSide:   m.KalshiSide,
		FoundAt:      m.FoundAt,
	}
	if m.Liquidity != nil {
		opp.Liquidity = &domain.LiquidityProfile{
			ContractsAtBest: m.Liquidity.ContractsAtBest,
			Contracts1Pct:   m.Liquidity.Contracts1Pct,
			Contracts2Pct:   m.Liquidity.Contracts2Pct,
			Contracts5Pct:   m.Liquidity.Contracts5Pct,
			DollarsAtBest:   m.Liquidity.DollarsAtBest,
			Dollars1Pct:     m.Liquidity.Dollars1Pct,
			Dollars2Pct:     m.Liquidity.Dollars2Pct,
			PolyContracts:   m.Liquidity.PolyContracts,
			KalshiContracts: m.Liquidity.KalshiContracts,
			Bottleneck:      domain.Venue(m.Liquidity.Bottleneck),
			Score:           m.Liquidity.Score,
			DepthEstimated:  m.Liquidity.DepthEstimated,
		}
	} else if m.PolyBook != nil || m.KalshiYesBid > 0 || m.KalshiYesAsk > 0 {
		var depth *domain.OrderBookDepth
		if m.PolyBook != nil {
			depth = m.PolyBook.toDomain()
		}
		opp.Liquidity = profileAnalyzer.Analyze(
			liquidity.PolyInput{
				Depth:       depth,
				TargetPrice: opp.PolyPrice(),
				Volume:      m.PolyVolume,
			},
			liquidity.KalshiInput{
				TargetPrice: opp.KalshiPrice(),
				YesBid:      m.KalshiYesBid,
				YesAsk:      m.KalshiYesAsk,
				Volume:      m.KalshiVolume,
			},
		)
	}
	return opp
}

// profileAnalyzer builds liquidity profiles for messages carrying raw market
// data instead of a precomputed profile.
var profileAnalyzer = liquidity.NewAnalyzer(nil)

// Feed implements domain.OpportunityFeed over Redis Pub/Sub. Messages that do
// not decode are logged and dropped; one bad producer must not stall the
// channel.
type Feed struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

var _ domain.OpportunityFeed = (*Feed)(nil)

// NewFeed creates a Feed on the given Pub/Sub channel. An empty channel name
// uses DefaultFeedChannel.
func NewFeed(c *Client, channel string, logger *slog.Logger) *Feed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	return &Feed{
		rdb:     c.Underlying(),
		channel: channel,
		logger:  logger.With(slog.String("component", "opportunity_feed")),
	}
}

// Subscribe opens the Pub/Sub subscription and returns a channel of decoded
// opportunities. The channel closes when ctx is cancelled.
func (f *Feed) Subscribe(ctx context.Context) (<-chan domain.Opportunity, error) {
	pubsub := f.rdb.Subscribe(ctx, f.channel)

	// Confirm the subscription before handing back a channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", f.channel, err)
	}

	out := make(chan domain.Opportunity, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m opportunityMsg
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					f.logger.Warn("dropping undecodable opportunity",
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- m.toDomain():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Publish serializes an opportunity onto the feed channel. Used by paper-mode
// tooling and tests; the production scanner publishes the same shape.
func (f *Feed) Publish(ctx context.Context, opp domain.Opportunity) error {
	msg := opportunityMsg{
		ID:           opp.ID,
		EventTitle:   opp.EventTitle,
		TeamA:        opp.TeamA,
		TeamB:        opp.TeamB,
		BuyYesVenue:  string(opp.BuyYesVenue),
		BuyNoVenue:   string(opp.BuyNoVenue),
		YesPrice:     opp.YesPrice,
		NoPrice:      opp.NoPrice,
		TotalCost:    opp.TotalCost,
		ROIAfterFees: opp.ROIAfterFees,
		ArbType:      opp.ArbType,
		Live:         opp.Live,
		Confidence:   string(opp.Confidence),
		Executable:   opp.Executable,
		PolyTokenID:  opp.PolyTokenID,
		PolySide:     opp.PolySide,
		KalshiTicker: opp.KalshiTicker,
		KalshiSide:   opp.KalshiSide,
		FoundAt:      opp.FoundAt,
	}
	if opp.Liquidity != nil {
		msg.Liquidity = &liquidityMsg{
			ContractsAtBest: opp.Liquidity.ContractsAtBest,
			Contracts1Pct:   opp.Liquidity.Contracts1Pct,
			Contracts2Pct:   opp.Liquidity.Contracts2Pct,
			Contracts5Pct:   opp.Liquidity.Contracts5Pct,
			DollarsAtBest:   opp.Liquidity.DollarsAtBest,
			Dollars1Pct:     opp.Liquidity.Dollars1Pct,
			Dollars2Pct:     opp.Liquidity.Dollars2Pct,
			PolyContracts:   opp.Liquidity.PolyContracts,
			KalshiContracts: opp.Liquidity.KalshiContracts,
			Bottleneck:      string(opp.Liquidity.Bottleneck),
			Score:           opp.Liquidity.Score,
			DepthEstimated:  opp.Liquidity.DepthEstimated,
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", opp.ID, err)
	}
	if err := f.rdb.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish opportunity %s: %w", opp.ID, err)
	}
	return nil
}
