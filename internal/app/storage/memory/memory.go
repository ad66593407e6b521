package memory

import (
	"sync"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
//
// Combination rows and balances are locked per key; the maps holding them are
// only locked long enough to look a row up or insert it.
type Store struct {
	lotteryMu sync.RWMutex
	lotteries map[string]lottery.Lottery

	comboMu  sync.RWMutex
	combos   map[string]*comboRow
	uploaded map[string]bool

	betMu sync.RWMutex
	bets  map[string]lottery.Bet
	order []string

	prizeMu    sync.RWMutex
	prizeTypes map[string]lottery.PrizeType
	plans      map[string]lottery.PrizePlan

	resultMu sync.RWMutex
	results  map[string]lottery.Result

	balanceMu sync.RWMutex
	balances  map[string]*balanceRow
	txMu      sync.RWMutex
	txs       map[string][]balance.Transaction

	now func() time.Time
}

var _ storage.LotteryStore = (*Store)(nil)
var _ storage.CombinationStore = (*Store)(nil)
var _ storage.BetStore = (*Store)(nil)
var _ storage.PrizeStore = (*Store)(nil)
var _ storage.ResultStore = (*Store)(nil)
var _ storage.BalanceStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		lotteries:  make(map[string]lottery.Lottery),
		combos:     make(map[string]*comboRow),
		uploaded:   make(map[string]bool),
		bets:       make(map[string]lottery.Bet),
		prizeTypes: make(map[string]lottery.PrizeType),
		plans:      make(map[string]lottery.PrizePlan),
		results:    make(map[string]lottery.Result),
		balances:   make(map[string]*balanceRow),
		txs:        make(map[string][]balance.Transaction),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func drawKey(lotteryID string, drawDate time.Time) string {
	return lotteryID + "|" + drawDate.Format("2006-01-02")
}
