package trader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfmahdi/dcabot/internal/exchange"
	"github.com/mfmahdi/dcabot/internal/market"
	"github.com/mfmahdi/dcabot/internal/order"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func btcusdt() market.Spec {
	return market.Spec{
		Symbol:         "BTCUSDT",
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USDT",
		BaseIncrement:  d("0.00001"),
		QuoteIncrement: d("0.01"),
		MinOrderSize:   d("0.00001"),
	}
}

// fakeExchange scripts a submission result and a sequence of status fetches.
type fakeExchange struct {
	spec      market.Spec
	book      market.Book
	initial   order.State
	submitErr error
	states    []order.State
	statusErr error

	submitCalls int
	statusCalls int
	lastSubmit  exchange.SubmitRequest
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) ResolveMarket(ctx context.Context, symbol string) (market.Spec, error) {
	return f.spec, nil
}

func (f *fakeExchange) FetchOrderBook(ctx context.Context, symbol string) (market.Book, error) {
	return f.book, nil
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req exchange.SubmitRequest) (order.State, error) {
	f.submitCalls++
	f.lastSubmit = req
	if f.submitErr != nil {
		return order.State{}, f.submitErr
	}
	return f.initial, nil
}

func (f *fakeExchange) GetOrderStatus(ctx context.Context, symbol, orderID string, withFills bool) (order.State, error) {
	if f.statusErr != nil {
		return order.State{}, f.statusErr
	}
	idx := f.statusCalls
	f.statusCalls++
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	return f.states[idx], nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return nil
}

// fakeClock fires every wait immediately and records the requested delays.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Time{} }

func (c *fakeClock) After(dur time.Duration) <-chan time.Time {
	c.slept = append(c.slept, dur)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type fakeNotifier struct {
	subjects []string
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) Send(subject string, payload any) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

func pending(remaining string) order.State {
	return order.State{
		OrderID:         "42",
		Symbol:          "BTCUSDT",
		Side:            order.Buy,
		Price:           d("50005.00"),
		OriginalAmount:  d("0.00028"),
		RemainingAmount: d(remaining),
		ExecutedAmount:  d("0.00028").Sub(d(remaining)),
	}
}

func filled(fills ...order.Fill) order.State {
	state := pending("0")
	state.Fills = fills
	return state
}

func newTestTrader(ex *fakeExchange, n *fakeNotifier, clock *fakeClock, warnAfter time.Duration) *Trader {
	return New(Config{
		PollInterval: time.Minute,
		WarnAfter:    warnAfter,
	}, ex, n, clock, zap.NewNop().Sugar())
}

func buyRequest(t *testing.T) order.Request {
	t.Helper()
	req, err := order.NewRequest("BTCUSDT", "BUY", "14", "USDT")
	require.NoError(t, err)
	return req
}

func TestRunFilled(t *testing.T) {
	ex := &fakeExchange{
		spec:    btcusdt(),
		book:    market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial: pending("0.00028"),
		states: []order.State{
			pending("0.00018"),
			pending("0.00008"),
			filled(
				order.Fill{Quantity: d("0.0002"), Price: d("50005.00"), FeeAmount: d("0.01"), FeeCurrency: "BNB"},
				order.Fill{Quantity: d("0.00008"), Price: d("50005.00"), FeeAmount: d("0.02"), FeeCurrency: "BNB"},
			),
		},
	}
	notifier := &fakeNotifier{}
	clock := &fakeClock{}
	tr := newTestTrader(ex, notifier, clock, time.Hour)

	result, err := tr.Run(context.Background(), buyRequest(t))
	require.NoError(t, err)

	require.Equal(t, OutcomeFilled, result.Outcome)
	require.True(t, result.TotalFee.Equal(d("0.03")), "total fee %s", result.TotalFee)
	require.Equal(t, "BNB", result.FeeCurrency)
	require.Equal(t, 1, ex.submitCalls)
	require.Equal(t, 3, ex.statusCalls)
	require.Len(t, clock.slept, 3)

	require.NotEmpty(t, notifier.subjects)
	require.Contains(t, notifier.subjects[len(notifier.subjects)-1], "complete @")
}

func TestRunFilledImmediately(t *testing.T) {
	ex := &fakeExchange{
		spec:    btcusdt(),
		book:    market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial: filled(order.Fill{Quantity: d("0.00028"), Price: d("50005.00"), FeeAmount: d("0.014"), FeeCurrency: "USDT"}),
	}
	clock := &fakeClock{}
	tr := newTestTrader(ex, &fakeNotifier{}, clock, time.Hour)

	result, err := tr.Run(context.Background(), buyRequest(t))
	require.NoError(t, err)

	require.Equal(t, OutcomeFilled, result.Outcome)
	require.Zero(t, ex.statusCalls)
	require.Empty(t, clock.slept)
	require.True(t, result.TotalFee.Equal(d("0.014")))
}

func TestRunTimedOut(t *testing.T) {
	ex := &fakeExchange{
		spec:    btcusdt(),
		book:    market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial: pending("0.00028"),
		states:  []order.State{pending("0.00028")},
	}
	notifier := &fakeNotifier{}
	clock := &fakeClock{}
	tr := newTestTrader(ex, notifier, clock, 5*time.Minute)

	result, err := tr.Run(context.Background(), buyRequest(t))
	require.NoError(t, err)

	require.Equal(t, OutcomeTimedOut, result.Outcome)
	// Polls at 1m..5m stay inside the budget, the 6m poll exceeds it.
	require.Equal(t, 6, ex.statusCalls)
	require.Len(t, clock.slept, 6)
	require.Len(t, notifier.subjects, 1)
	require.Contains(t, notifier.subjects[0], "OPEN/UNFILLED")
}

func TestRunCancelled(t *testing.T) {
	cancelled := pending("0.00018")
	cancelled.IsCancelled = true

	ex := &fakeExchange{
		spec:    btcusdt(),
		book:    market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial: pending("0.00028"),
		states:  []order.State{cancelled},
	}
	notifier := &fakeNotifier{}
	tr := newTestTrader(ex, notifier, &fakeClock{}, time.Hour)

	result, err := tr.Run(context.Background(), buyRequest(t))
	require.NoError(t, err)

	// Cancelled wins even though the order is partially filled.
	require.Equal(t, OutcomeCancelled, result.Outcome)
	require.Equal(t, 1, ex.statusCalls)
	require.Len(t, notifier.subjects, 1)
	require.Contains(t, notifier.subjects[0], "CANCELLED")
}

func TestRunRejected(t *testing.T) {
	ex := &fakeExchange{
		spec:      btcusdt(),
		book:      market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		submitErr: &exchange.RejectionError{Code: -2010, Reason: "Account has insufficient balance for requested action."},
	}
	notifier := &fakeNotifier{}
	tr := newTestTrader(ex, notifier, &fakeClock{}, time.Hour)

	result, err := tr.Run(context.Background(), buyRequest(t))
	require.Error(t, err)

	var rejection *exchange.RejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, OutcomeRejected, result.Outcome)
	require.Equal(t, 1, ex.submitCalls)
	require.Zero(t, ex.statusCalls)
	require.Len(t, notifier.subjects, 1)
	require.True(t, strings.HasPrefix(notifier.subjects[0], "ERROR placing"))
}

func TestRunInvalidCurrency(t *testing.T) {
	ex := &fakeExchange{
		spec: btcusdt(),
		book: market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
	}
	tr := newTestTrader(ex, &fakeNotifier{}, &fakeClock{}, time.Hour)

	req, err := order.NewRequest("BTCUSDT", "BUY", "14", "DOGE")
	require.NoError(t, err)

	_, err = tr.Run(context.Background(), req)
	require.ErrorIs(t, err, order.ErrInvalidRequest)
	require.Zero(t, ex.submitCalls, "invalid request must fail before submission")
}

func TestRunSizesQuoteAmount(t *testing.T) {
	ex := &fakeExchange{
		spec:    btcusdt(),
		book:    market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial: filled(),
	}
	tr := newTestTrader(ex, &fakeNotifier{}, &fakeClock{}, time.Hour)

	_, err := tr.Run(context.Background(), buyRequest(t))
	require.NoError(t, err)

	require.True(t, ex.lastSubmit.Price.Equal(d("50005.00")), "price %s", ex.lastSubmit.Price)
	require.True(t, ex.lastSubmit.Quantity.Equal(d("0.00028")), "quantity %s", ex.lastSubmit.Quantity)
	require.Equal(t, order.Buy, ex.lastSubmit.Side)
}

func TestRunStatusFetchFailureIsFatal(t *testing.T) {
	ex := &fakeExchange{
		spec:      btcusdt(),
		book:      market.Book{Symbol: "BTCUSDT", Bid: d("50000.00"), Ask: d("50010.00")},
		initial:   pending("0.00028"),
		statusErr: errors.New("connection reset"),
	}
	tr := newTestTrader(ex, &fakeNotifier{}, &fakeClock{}, time.Hour)

	_, err := tr.Run(context.Background(), buyRequest(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}
