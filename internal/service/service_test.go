package service

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/contracts/contractstest"
	"losslessMarket/internal/model"
	"losslessMarket/internal/oracle"
)

type fakeAccount struct {
	chain *contractstest.Chain
	admin bool
	off   bool
}

func (a *fakeAccount) Sender() contracts.Sender {
	if a.off {
		return nil
	}
	return a.chain
}

func (a *fakeAccount) Address() (common.Address, bool) {
	if a.off {
		return common.Address{}, false
	}
	return a.chain.Sender, true
}

func (a *fakeAccount) IsAdmin() bool { return a.admin }

type fakePrices struct {
	ids []string
}

func (p *fakePrices) LatestPriceUpdate(ctx context.Context, priceIDs ...string) (oracle.PriceUpdate, error) {
	p.ids = append(p.ids, priceIDs...)
	return oracle.PriceUpdate{Data: [][]byte{{0x50, 0x4e, 0x41, 0x55}}}, nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return true, nil
}

func newFactory(t *testing.T, fake *contractstest.Chain) *contracts.Factory {
	t.Helper()
	factory, err := contracts.NewFactory(fake.FactoryAddress.Hex(), fake)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return factory
}

func TestMarketsPageDropsFailedReads(t *testing.T) {
	fake := contractstest.NewChain()
	first := fake.AddMarket(model.Market{Question: "Will ETH be above $3,500?", ResolveDate: 100}, 0)
	broken := fake.AddMarket(model.Market{Question: "broken"}, 0)
	third := fake.AddMarket(model.Market{Question: "Will BTC be above $100,000?", ResolveDate: 300}, 0)
	fake.Failing[broken] = true

	page := NewMarketsPage(newFactory(t, fake), fake, MarketsPageConfig{}, nil)
	var updates [][]model.Market
	page.OnUpdate(func(ms []model.Market) { updates = append(updates, ms) })

	ran, err := page.Refresh(context.Background())
	if err != nil || !ran {
		t.Fatalf("refresh: %v %v", ran, err)
	}

	markets := page.Markets()
	got := []string{markets[0].Address, markets[1].Address}
	want := []string{first.Hex(), third.Hex()}
	if len(markets) != 2 || !reflect.DeepEqual(got, want) {
		t.Fatalf("markets mismatch: %v", got)
	}
	if markets[0].Symbol != "ETHUSD" {
		t.Fatalf("symbol not derived: %q", markets[0].Symbol)
	}
	if len(updates) != 1 || len(updates[0]) != 2 {
		t.Fatalf("expected one update with two markets, got %d", len(updates))
	}
	if _, ok := page.Market(third.Hex()); !ok {
		t.Fatalf("market lookup failed")
	}
}

// stalledLister blocks its first call until release is closed, after the
// market list has already been read.
type stalledLister struct {
	next    MarketLister
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newStalledLister(next MarketLister) *stalledLister {
	return &stalledLister{next: next, started: make(chan struct{}), release: make(chan struct{})}
}

func (l *stalledLister) GetAllMarkets(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	l.mu.Unlock()

	var addresses []string
	if l.next != nil {
		var err error
		if addresses, err = l.next.GetAllMarkets(ctx); err != nil {
			return nil, err
		}
	}
	if first {
		close(l.started)
		<-l.release
	}
	return addresses, nil
}

func (l *stalledLister) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestMarketsPageQueuesOverlappingRefresh(t *testing.T) {
	lister := newStalledLister(nil)
	page := NewMarketsPage(lister, contractstest.NewChain(), MarketsPageConfig{}, nil)

	done := make(chan bool)
	go func() {
		ran, _ := page.Refresh(context.Background())
		done <- ran
	}()
	<-lister.started

	for i := 0; i < 3; i++ {
		ran, err := page.Refresh(context.Background())
		if err != nil || ran {
			t.Fatalf("overlapping refresh should be queued: ran=%v err=%v", ran, err)
		}
	}

	close(lister.release)
	if !<-done {
		t.Fatalf("first refresh should have run")
	}
	if got := lister.Calls(); got != 2 {
		t.Fatalf("queued refreshes should collapse into one more load, got %d loads", got)
	}
}

func TestMarketsPageReloadsAfterBetDuringPoll(t *testing.T) {
	fake := contractstest.NewChain()
	addr := fake.AddMarket(model.Market{USDC: fake.TokenAddress.Hex(), State: model.MarketActive, ResolveDate: 5000}, 600)
	lister := newStalledLister(newFactory(t, fake))
	page := NewMarketsPage(lister, fake, MarketsPageConfig{Concurrency: 1}, nil)

	detail, err := NewMarketDetail(addr.Hex(), fake, &fakeAccount{chain: fake}, nil, nil)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	detail.SetRefresher(page)

	done := make(chan struct{})
	go func() {
		_, _ = page.Refresh(context.Background())
		close(done)
	}()
	<-lister.started

	if _, err := detail.PlaceBet(context.Background(), model.SideYes, "2.5"); err != nil {
		t.Fatalf("place bet: %v", err)
	}
	close(lister.release)
	<-done

	m, ok := page.Market(addr.Hex())
	if !ok || m.TotalYes != "2500000" {
		t.Fatalf("page should show the confirmed bet: ok=%v total yes=%q", ok, m.TotalYes)
	}
	if got := lister.Calls(); got != 2 {
		t.Fatalf("expected a second load after the bet, got %d", got)
	}
}

func TestPlaceBetApprovesAndStakes(t *testing.T) {
	fake := contractstest.NewChain()
	addr := fake.AddMarket(model.Market{USDC: fake.TokenAddress.Hex(), State: model.MarketActive, ResolveDate: 5000}, 600)
	refresher := &countingRefresher{}

	detail, err := NewMarketDetail(addr.Hex(), fake, &fakeAccount{chain: fake}, nil, nil)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	detail.SetRefresher(refresher)

	if _, err := detail.PlaceBet(context.Background(), model.SideYes, "2.5"); err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if got := fake.SentMethods(); !reflect.DeepEqual(got, []string{"approve", "placeBetYes"}) {
		t.Fatalf("unexpected calls: %v", got)
	}
	if fake.Market(addr).TotalYes != "2500000" {
		t.Fatalf("total yes mismatch: %s", fake.Market(addr).TotalYes)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected a refresh after the bet, got %d", refresher.calls)
	}

	snap, err := detail.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Stake.YesStake != "2500000" || !snap.Availability.CanBet || snap.TimeLeftText != "10m 0s" {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	fake := contractstest.NewChain()
	active := fake.AddMarket(model.Market{USDC: fake.TokenAddress.Hex(), State: model.MarketActive}, 600)
	closed := fake.AddMarket(model.Market{USDC: fake.TokenAddress.Hex(), State: model.MarketActive}, 0)
	resolved := fake.AddMarket(model.Market{USDC: fake.TokenAddress.Hex(), State: model.MarketResolved}, 600)
	ctx := context.Background()

	cases := []struct {
		market  common.Address
		account *fakeAccount
		amount  string
		want    error
	}{
		{active, &fakeAccount{chain: fake, off: true}, "1", ErrNotConnected},
		{active, &fakeAccount{chain: fake}, "", ErrInvalidBetAmount},
		{active, &fakeAccount{chain: fake}, "-3", ErrInvalidBetAmount},
		{resolved, &fakeAccount{chain: fake}, "1", ErrMarketNotActive},
		{closed, &fakeAccount{chain: fake}, "1", ErrBettingClosed},
	}
	for _, tc := range cases {
		detail, err := NewMarketDetail(tc.market.Hex(), fake, tc.account, nil, nil)
		if err != nil {
			t.Fatalf("detail: %v", err)
		}
		if _, err := detail.PlaceBet(ctx, model.SideNo, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("amount %q on %s: expected %v, got %v", tc.amount, tc.market.Hex(), tc.want, err)
		}
	}
	if len(fake.Sent) != 0 {
		t.Fatalf("validation failures must not send transactions: %v", fake.SentMethods())
	}
}

func TestResolveUsesOracleUpdateAndFee(t *testing.T) {
	fake := contractstest.NewChain()
	fake.UpdateFee = big.NewInt(7)
	addr := fake.AddMarket(model.Market{
		State:       model.MarketActive,
		ResolveDate: 1_000,
		PriceFeedID: "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	}, 0)
	prices := &fakePrices{}

	detail, err := NewMarketDetail(addr.Hex(), fake, &fakeAccount{chain: fake}, prices, nil)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}

	detail.now = func() time.Time { return time.Unix(999, 0) }
	if _, err := detail.Resolve(context.Background()); !errors.Is(err, ErrResolveTooEarly) {
		t.Fatalf("expected ErrResolveTooEarly, got %v", err)
	}

	detail.now = func() time.Time { return time.Unix(1_000, 0) }
	if _, err := detail.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(prices.ids) != 1 || prices.ids[0] != fake.Market(addr).PriceFeedID {
		t.Fatalf("unexpected price ids: %v", prices.ids)
	}
	last := fake.Sent[len(fake.Sent)-1]
	if last.Method != "resolveMarket" || last.Value.Int64() != 7 {
		t.Fatalf("unexpected resolve call: %+v", last)
	}
	if fake.Market(addr).State != model.MarketResolved {
		t.Fatalf("market should be resolved")
	}

	if _, err := detail.Resolve(context.Background()); !errors.Is(err, ErrMarketNotActive) {
		t.Fatalf("expected ErrMarketNotActive on second resolve, got %v", err)
	}
}

func TestClaimGuards(t *testing.T) {
	fake := contractstest.NewChain()
	active := fake.AddMarket(model.Market{State: model.MarketActive}, 100)
	resolved := fake.AddMarket(model.Market{State: model.MarketResolved, WinningSide: model.SideYes}, 0)
	account := &fakeAccount{chain: fake}
	ctx := context.Background()

	detail, _ := NewMarketDetail(active.Hex(), fake, account, nil, nil)
	if _, err := detail.Claim(ctx); !errors.Is(err, ErrMarketStillActive) {
		t.Fatalf("expected ErrMarketStillActive, got %v", err)
	}

	detail, _ = NewMarketDetail(resolved.Hex(), fake, account, nil, nil)
	if _, err := detail.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := detail.Claim(ctx); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if got := fake.SentMethods(); !reflect.DeepEqual(got, []string{"claim"}) {
		t.Fatalf("claim must be invoked exactly once: %v", got)
	}

	snap, err := detail.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Availability.CanClaim || !snap.Availability.Claimed {
		t.Fatalf("claimed position must hide claim: %+v", snap.Availability)
	}
}

func TestAdminCreateMarket(t *testing.T) {
	fake := contractstest.NewChain()
	account := &fakeAccount{chain: fake}
	page := NewAdminPage(newFactory(t, fake), fake, account, nil)
	page.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	in := CreateMarketInput{
		USDC:        fake.TokenAddress.Hex(),
		LendingPool: "0x0000000000000000000000000000000000000a0e",
		PriceOracle: "0x0000000000000000000000000000000000000f17",
		PriceFeedID: "0xabc",
		TargetPrice: "3500",
		ResolveDate: time.Unix(1_700_086_400, 0),
		Question:    "Will ETH be above $3,500?",
	}

	if _, _, err := page.CreateMarket(context.Background(), in); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}

	account.admin = true
	market, _, err := page.CreateMarket(context.Background(), in)
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	created := fake.Market(common.HexToAddress(market))
	if created.TargetPrice != "350000000000" || created.ResolveDate != 1_700_086_400 {
		t.Fatalf("created market mismatch: %+v", created)
	}
	if created.PriceFeedID != "0x0000000000000000000000000000000000000000000000000000000000000abc" {
		t.Fatalf("price id not padded: %s", created.PriceFeedID)
	}

	in.ResolveDate = time.Unix(1_600_000_000, 0)
	if _, err := page.BuildParams(in); err == nil {
		t.Fatalf("expected error for past resolve date")
	}
}

func TestAdminCancelAndWithdraw(t *testing.T) {
	fake := contractstest.NewChain()
	addr := fake.AddMarket(model.Market{State: model.MarketActive}, 100)
	page := NewAdminPage(newFactory(t, fake), fake, &fakeAccount{chain: fake, admin: true}, nil)
	ctx := context.Background()

	if _, err := page.Cancel(ctx, addr.Hex()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if fake.Market(addr).State != model.MarketCancelled {
		t.Fatalf("market should be cancelled")
	}
	if _, err := page.WithdrawLeftover(ctx, addr.Hex(), "1.5", ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	last := fake.Sent[len(fake.Sent)-1]
	if last.Method != "withdrawLeftover" || last.Args[0].(*big.Int).Int64() != 1_500_000 || last.Args[1].(common.Address) != fake.Sender {
		t.Fatalf("unexpected withdraw call: %+v", last)
	}
}

type failingLister struct{}

func (failingLister) GetAllMarkets(ctx context.Context) ([]string, error) {
	return nil, errors.New("rpc down")
}

func TestMarketsPageReportsRefreshErrors(t *testing.T) {
	page := NewMarketsPage(failingLister{}, contractstest.NewChain(), MarketsPageConfig{}, nil)
	var failures int
	page.OnError(func(error) { failures++ })
	page.OnUpdate(func([]model.Market) { t.Fatalf("update must not fire on failure") })

	if _, err := page.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if failures != 1 {
		t.Fatalf("expected one failure callback, got %d", failures)
	}
	if _, err := page.Status(); err == nil {
		t.Fatalf("status should carry the last error")
	}
}
