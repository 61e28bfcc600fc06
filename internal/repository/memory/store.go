// Package memory is an in-process implementation of store.Store used by
// tests and the dev server. A transaction works on a copy of the committed
// state and swaps it in on success, so failed operations leave no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"corebank/internal/domain"
	"corebank/internal/store"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountKey struct {
	userID uuid.UUID
	kind   domain.AccountKind
}

type walletKey struct {
	userID uuid.UUID
	asset  domain.AssetID
}

type state struct {
	accounts        map[accountKey]*domain.Account
	transactions    map[uuid.UUID]*domain.Transaction
	txOrder         []uuid.UUID
	transfers       map[string]*domain.InternalTransfer
	wires           map[uuid.UUID]*domain.WireTransfer
	wireOrder       []uuid.UUID
	wireControls    map[uuid.UUID]*domain.WireControl
	wallets         map[walletKey]*domain.CryptoWallet
	cryptoTxs       []*domain.CryptoTransaction
	tradingControls map[uuid.UUID]*domain.TradingControl
	audit           []*domain.AdminAuditEntry
}

func newState() *state {
	return &state{
		accounts:        make(map[accountKey]*domain.Account),
		transactions:    make(map[uuid.UUID]*domain.Transaction),
		transfers:       make(map[string]*domain.InternalTransfer),
		wires:           make(map[uuid.UUID]*domain.WireTransfer),
		wireControls:    make(map[uuid.UUID]*domain.WireControl),
		wallets:         make(map[walletKey]*domain.CryptoWallet),
		tradingControls: make(map[uuid.UUID]*domain.TradingControl),
	}
}

// clone copies the containers. Values are never mutated in place, writers
// replace the pointer, so sharing them is safe.
func (s *state) clone() *state {
	c := &state{
		accounts:        make(map[accountKey]*domain.Account, len(s.accounts)),
		transactions:    make(map[uuid.UUID]*domain.Transaction, len(s.transactions)),
		txOrder:         append([]uuid.UUID(nil), s.txOrder...),
		transfers:       make(map[string]*domain.InternalTransfer, len(s.transfers)),
		wires:           make(map[uuid.UUID]*domain.WireTransfer, len(s.wires)),
		wireOrder:       append([]uuid.UUID(nil), s.wireOrder...),
		wireControls:    make(map[uuid.UUID]*domain.WireControl, len(s.wireControls)),
		wallets:         make(map[walletKey]*domain.CryptoWallet, len(s.wallets)),
		cryptoTxs:       append([]*domain.CryptoTransaction(nil), s.cryptoTxs...),
		tradingControls: make(map[uuid.UUID]*domain.TradingControl, len(s.tradingControls)),
		audit:           append([]*domain.AdminAuditEntry(nil), s.audit...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.wires {
		c.wires[k] = v
	}
	for k, v := range s.wireControls {
		c.wireControls[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.tradingControls {
		c.tradingControls[k] = v
	}
	return c
}

// Store serializes writers through a single-slot semaphore so waiting honours
// the caller's deadline.
type Store struct {
	sem chan struct{}

	mu        sync.RWMutex
	committed *state

	faultMu sync.Mutex
	faults  map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sem:       make(chan struct{}, 1),
		committed: newState(),
		faults:    make(map[string]error),
	}
}

// FailOn makes the next call to the named Tx method return err. Used to
// simulate a crash between linked writes.
func (s *Store) FailOn(method string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.faults[method]; ok {
		delete(s.faults, method)
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.FromContext(ctx.Err())
	}
	defer func() { <-s.sem }()

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()

	t := &tx{reader: reader{st: working}, owner: s}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.FromContext(err)
	}

	s.mu.Lock()
	s.committed = working
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() reader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{st: s.committed}
}

// Read methods on the committed state.

func (s *Store) GetAccount(ctx context.Context, userID uuid.UUID, kind domain.AccountKind) (*domain.Account, error) {
	r := s.snapshot()
	return r.GetAccount(ctx, userID, kind)
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	r := s.snapshot()
	return r.ListAccounts(ctx, userID)
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r := s.snapshot()
	return r.GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	r := s.snapshot()
	return r.ListTransactions(ctx, userID, limit, offset)
}

func (s *Store) CountTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	r := s.snapshot()
	return r.CountTransactions(ctx, userID)
}

func (s *Store) ListTransactionsByTransferID(ctx context.Context, transferID string) ([]*domain.Transaction, error) {
	r := s.snapshot()
	return r.ListTransactionsByTransferID(ctx, transferID)
}

func (s *Store) GetInternalTransfer(ctx context.Context, id string) (*domain.InternalTransfer, error) {
	r := s.snapshot()
	return r.GetInternalTransfer(ctx, id)
}

func (s *Store) GetWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error) {
	r := s.snapshot()
	return r.GetWire(ctx, id)
}

func (s *Store) ListWires(ctx context.Context, filter store.WireFilter) ([]*domain.WireTransfer, error) {
	r := s.snapshot()
	return r.ListWires(ctx, filter)
}

func (s *Store) GetWireControl(ctx context.Context, userID uuid.UUID) (*domain.WireControl, error) {
	r := s.snapshot()
	return r.GetWireControl(ctx, userID)
}

func (s *Store) GetCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	r := s.snapshot()
	return r.GetCryptoWallet(ctx, userID, asset)
}

func (s *Store) ListCryptoWallets(ctx context.Context, userID uuid.UUID) ([]*domain.CryptoWallet, error) {
	r := s.snapshot()
	return r.ListCryptoWallets(ctx, userID)
}

func (s *Store) ListCryptoTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CryptoTransaction, error) {
	r := s.snapshot()
	return r.ListCryptoTransactions(ctx, userID, limit)
}

func (s *Store) GetTradingControl(ctx context.Context, userID uuid.UUID) (*domain.TradingControl, error) {
	r := s.snapshot()
	return r.GetTradingControl(ctx, userID)
}

func (s *Store) ListAuditEntries(ctx context.Context, targetUserID uuid.UUID, limit int) ([]*domain.AdminAuditEntry, error) {
	r := s.snapshot()
	return r.ListAuditEntries(ctx, targetUserID, limit)
}

// reader answers queries against one state value and hands out copies.
type reader struct {
	st *state
}

func (r reader) GetAccount(_ context.Context, userID uuid.UUID, kind domain.AccountKind) (*domain.Account, error) {
	a, ok := r.st.accounts[accountKey{userID, kind}]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (r reader) ListAccounts(_ context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, kind := range domain.AccountKinds {
		if a, ok := r.st.accounts[accountKey{userID, kind}]; ok {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r reader) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, ok := r.st.transactions[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	c := *t
	return &c, nil
}

func (r reader) ListTransactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	// newest first
	for i := len(r.st.txOrder) - 1; i >= 0; i-- {
		t := r.st.transactions[r.st.txOrder[i]]
		if t.UserID != userID {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return page(out, limit, offset), nil
}

func (r reader) CountTransactions(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, t := range r.st.transactions {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r reader) ListTransactionsByTransferID(_ context.Context, transferID string) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, id := range r.st.txOrder {
		t := r.st.transactions[id]
		if t.TransferID != nil && *t.TransferID == transferID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r reader) GetInternalTransfer(_ context.Context, id string) (*domain.InternalTransfer, error) {
	t, ok := r.st.transfers[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	c := *t
	return &c, nil
}

func (r reader) GetWire(_ context.Context, id uuid.UUID) (*domain.WireTransfer, error) {
	w, ok := r.st.wires[id]
	if !ok {
		return nil, errors.ErrWireNotFound
	}
	c := *w
	return &c, nil
}

func (r reader) ListWires(_ context.Context, filter store.WireFilter) ([]*domain.WireTransfer, error) {
	var out []*domain.WireTransfer
	for i := len(r.st.wireOrder) - 1; i >= 0; i-- {
		w := r.st.wires[r.st.wireOrder[i]]
		if filter.UserID != uuid.Nil && w.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		c := *w
		out = append(out, &c)
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r reader) GetWireControl(_ context.Context, userID uuid.UUID) (*domain.WireControl, error) {
	c, ok := r.st.wireControls[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r reader) GetCryptoWallet(_ context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	w, ok := r.st.wallets[walletKey{userID, asset}]
	if !ok {
		return nil, errors.ErrWalletNotFound
	}
	c := *w
	return &c, nil
}

func (r reader) ListCryptoWallets(_ context.Context, userID uuid.UUID) ([]*domain.CryptoWallet, error) {
	var out []*domain.CryptoWallet
	for _, asset := range domain.Assets {
		if w, ok := r.st.wallets[walletKey{userID, asset}]; ok {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r reader) ListCryptoTransactions(_ context.Context, userID uuid.UUID, limit int) ([]*domain.CryptoTransaction, error) {
	var out []*domain.CryptoTransaction
	for i := len(r.st.cryptoTxs) - 1; i >= 0; i-- {
		t := r.st.cryptoTxs[i]
		if t.UserID != userID {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return page(out, limit, 0), nil
}

func (r reader) GetTradingControl(_ context.Context, userID uuid.UUID) (*domain.TradingControl, error) {
	c, ok := r.st.tradingControls[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r reader) ListAuditEntries(_ context.Context, targetUserID uuid.UUID, limit int) ([]*domain.AdminAuditEntry, error) {
	var out []*domain.AdminAuditEntry
	for i := len(r.st.audit) - 1; i >= 0; i-- {
		e := r.st.audit[i]
		if targetUserID != uuid.Nil && e.TargetUserID != targetUserID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type tx struct {
	reader
	owner *Store
}

func (t *tx) LockAccounts(ctx context.Context, userID uuid.UUID, kinds ...domain.AccountKind) (map[domain.AccountKind]*domain.Account, error) {
	if err := t.owner.fault("LockAccounts"); err != nil {
		return nil, err
	}
	sorted := append([]domain.AccountKind(nil), kinds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[domain.AccountKind]*domain.Account, len(sorted))
	for _, kind := range sorted {
		a, err := t.GetAccount(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = a
	}
	return out, nil
}

func (t *tx) AdjustBalance(_ context.Context, userID uuid.UUID, kind domain.AccountKind, delta decimal.Decimal) (*domain.Account, error) {
	if err := t.owner.fault("AdjustBalance"); err != nil {
		return nil, err
	}
	key := accountKey{userID, kind}
	cur, ok := t.st.accounts[key]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	next := cur.Balance.Add(delta)
	if next.IsNegative() {
		return nil, errors.ErrInsufficientFunds
	}

	a := *cur
	a.Balance = next
	if delta.IsPositive() {
		a.LastCreditAmount = delta
	} else if delta.IsNegative() {
		a.LastDebitAmount = delta.Neg()
	}
	a.UpdatedAt = time.Now().UTC()
	t.st.accounts[key] = &a

	c := a
	return &c, nil
}

func (t *tx) CreateAccount(_ context.Context, account *domain.Account) error {
	if err := t.owner.fault("CreateAccount"); err != nil {
		return err
	}
	key := accountKey{account.UserID, account.Kind}
	if _, ok := t.st.accounts[key]; ok {
		return errors.ErrAccountAlreadyExists
	}
	for _, a := range t.st.accounts {
		if a.AccountNumber == account.AccountNumber {
			return errors.ErrAccountAlreadyExists
		}
	}
	a := *account
	t.st.accounts[key] = &a
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	if err := t.owner.fault("InsertTransaction"); err != nil {
		return err
	}
	if _, ok := t.st.transactions[txn.ID]; ok {
		return errors.ErrDuplicateRequest
	}
	c := *txn
	t.st.transactions[txn.ID] = &c
	t.st.txOrder = append(t.st.txOrder, txn.ID)
	return nil
}

func (t *tx) FinalizeTransaction(_ context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	if err := t.owner.fault("FinalizeTransaction"); err != nil {
		return err
	}
	cur, ok := t.st.transactions[id]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	if cur.Status.Terminal() {
		return errors.ErrTransactionFinalized
	}
	now := time.Now().UTC()
	c := *cur
	c.Status = status
	c.UpdatedAt = now
	if status == domain.TransactionStatusCompleted {
		c.CompletedAt = &now
	}
	t.st.transactions[id] = &c
	return nil
}

func (t *tx) InsertInternalTransfer(_ context.Context, it *domain.InternalTransfer) error {
	if err := t.owner.fault("InsertInternalTransfer"); err != nil {
		return err
	}
	if _, ok := t.st.transfers[it.ID]; ok {
		return errors.ErrDuplicateRequest
	}
	c := *it
	t.st.transfers[it.ID] = &c
	return nil
}

func (t *tx) InsertWire(_ context.Context, w *domain.WireTransfer) error {
	if err := t.owner.fault("InsertWire"); err != nil {
		return err
	}
	if _, ok := t.st.wires[w.ID]; ok {
		return errors.ErrDuplicateRequest
	}
	for _, existing := range t.st.wires {
		if existing.ConfirmationNumber == w.ConfirmationNumber {
			return errors.ErrDuplicateRequest
		}
	}
	c := *w
	t.st.wires[w.ID] = &c
	t.st.wireOrder = append(t.st.wireOrder, w.ID)
	return nil
}

func (t *tx) LockWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error) {
	if err := t.owner.fault("LockWire"); err != nil {
		return nil, err
	}
	return t.GetWire(ctx, id)
}

func (t *tx) UpdateWire(_ context.Context, w *domain.WireTransfer) error {
	if err := t.owner.fault("UpdateWire"); err != nil {
		return err
	}
	cur, ok := t.st.wires[w.ID]
	if !ok {
		return errors.ErrWireNotFound
	}
	c := *w
	// immutable after creation
	c.ConfirmationNumber = cur.ConfirmationNumber
	c.TotalAmount = cur.TotalAmount
	c.UpdatedAt = time.Now().UTC()
	t.st.wires[w.ID] = &c
	return nil
}

func (t *tx) UpsertWireControl(_ context.Context, wc *domain.WireControl) error {
	if err := t.owner.fault("UpsertWireControl"); err != nil {
		return err
	}
	c := *wc
	t.st.wireControls[wc.UserID] = &c
	return nil
}

func (t *tx) LockCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	if err := t.owner.fault("LockCryptoWallet"); err != nil {
		return nil, err
	}
	return t.GetCryptoWallet(ctx, userID, asset)
}

func (t *tx) AdjustCryptoBalance(_ context.Context, userID uuid.UUID, asset domain.AssetID, delta decimal.Decimal) (*domain.CryptoWallet, error) {
	if err := t.owner.fault("AdjustCryptoBalance"); err != nil {
		return nil, err
	}
	key := walletKey{userID, asset}
	cur, ok := t.st.wallets[key]
	if !ok {
		return nil, errors.ErrWalletNotFound
	}
	next := cur.Balance.Add(delta)
	if next.IsNegative() {
		return nil, errors.ErrInsufficientFunds
	}
	w := *cur
	w.Balance = next
	w.PriceUSD = decimal.NullDecimal{}
	w.AdminTotalUSD = decimal.NullDecimal{}
	w.UpdatedAt = time.Now().UTC()
	t.st.wallets[key] = &w
	c := w
	return &c, nil
}

func (t *tx) SetCryptoValuation(_ context.Context, userID uuid.UUID, asset domain.AssetID, price, total decimal.NullDecimal) error {
	if err := t.owner.fault("SetCryptoValuation"); err != nil {
		return err
	}
	key := walletKey{userID, asset}
	cur, ok := t.st.wallets[key]
	if !ok {
		return errors.ErrWalletNotFound
	}
	w := *cur
	w.PriceUSD = price
	w.AdminTotalUSD = total
	w.UpdatedAt = time.Now().UTC()
	t.st.wallets[key] = &w
	return nil
}

func (t *tx) CreateCryptoWallet(_ context.Context, w *domain.CryptoWallet) error {
	if err := t.owner.fault("CreateCryptoWallet"); err != nil {
		return err
	}
	key := walletKey{w.UserID, w.AssetID}
	if _, ok := t.st.wallets[key]; ok {
		return errors.ErrAccountAlreadyExists
	}
	c := *w
	t.st.wallets[key] = &c
	return nil
}

func (t *tx) InsertCryptoTransaction(_ context.Context, ct *domain.CryptoTransaction) error {
	if err := t.owner.fault("InsertCryptoTransaction"); err != nil {
		return err
	}
	c := *ct
	t.st.cryptoTxs = append(t.st.cryptoTxs, &c)
	return nil
}

func (t *tx) UpsertTradingControl(_ context.Context, tc *domain.TradingControl) error {
	if err := t.owner.fault("UpsertTradingControl"); err != nil {
		return err
	}
	c := *tc
	t.st.tradingControls[tc.UserID] = &c
	return nil
}

func (t *tx) InsertAuditEntry(_ context.Context, e *domain.AdminAuditEntry) error {
	if err := t.owner.fault("InsertAuditEntry"); err != nil {
		return err
	}
	c := *e
	t.st.audit = append(t.st.audit, &c)
	return nil
}
