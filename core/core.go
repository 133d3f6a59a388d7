// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package core is the wallet session orchestrator. Core composes the
// connection, state, balance and transaction managers behind a single
// UI-facing surface: initialize / import / refresh / logout / reset. The
// payment protocol itself lives entirely behind the wallet.Service interface
// and is never re-implemented here.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/wallet"
)

// Config is the configuration for the Core.
type Config struct {
	// Store is the credential store.
	Store CredentialStore
	// Service is the backing wallet service.
	Service wallet.Service
	// AppPass is the password from which the credential encryption key is
	// derived. Required.
	AppPass string
	// Currency is the wallet-scoped currency selection side-channel. May be
	// nil.
	Currency CurrencySelector
	// Logger is the Core's logger. Required.
	Logger wallet.Logger
	// Balance adjusts the balance manager. May be nil for defaults.
	Balance *BalanceConfig
	// HistoryInterval overrides the payment refresh period.
	HistoryInterval time.Duration
}

// Core is the wallet session orchestrator. Core owns no domain state of its
// own beyond the wallet info snapshot; everything else it republishes from
// the managers it composes.
type Core struct {
	ctx     context.Context
	ready   chan struct{}
	log     wallet.Logger
	cfg     *Config
	store   CredentialStore
	svc     wallet.Service
	crypter encrypt.Crypter

	conn    *ConnectionManager
	state   *StateManager
	balance *BalanceManager
	history *TransactionManager

	noteMtx   sync.RWMutex
	noteChans []chan Notification

	infoMtx    sync.RWMutex
	walletInfo *wallet.Info
	infoErr    error
}

// New is the constructor for a new Core. The encryption key is derived from
// cfg.AppPass, creating and persisting new key parameters on first use.
func New(cfg *Config) (*Core, error) {
	if cfg.AppPass == "" {
		return nil, fmt.Errorf("empty password not allowed")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	log := cfg.Logger

	crypter, err := sessionCrypter(cfg.Store, cfg.AppPass)
	if err != nil {
		return nil, err
	}

	c := &Core{
		ready:   make(chan struct{}),
		log:     log,
		cfg:     cfg,
		store:   cfg.Store,
		svc:     cfg.Service,
		crypter: crypter,
	}

	c.conn = NewConnectionManager(cfg.Service, cfg.Store, crypter, cfg.Currency,
		c.notify, log.SubLogger("CONN"))
	c.state = NewStateManager(cfg.Store, crypter, c.notify, log.SubLogger("STATE"))
	c.balance = NewBalanceManager(cfg.Service, cfg.Balance, c.notify, log.SubLogger("BAL"))
	c.history = NewTransactionManager(cfg.Service, cfg.HistoryInterval, c.notify, log.SubLogger("TX"))

	c.conn.onDisconnect = func() {
		c.balance.StopBalanceUpdates()
		c.history.StopPaymentUpdates()
	}
	c.state.onReset = c.clearWalletInfo

	log.Tracef("new wallet session core created")
	return c, nil
}

// sessionCrypter loads the stored encryption key parameters, or creates and
// persists new ones on a fresh store.
func sessionCrypter(store CredentialStore, pw string) (encrypt.Crypter, error) {
	keyParams, err := store.KeyParams()
	if err != nil {
		return nil, fmt.Errorf("key retrieval error: %w", err)
	}
	if len(keyParams) == 0 {
		crypter := encrypt.NewCrypter(pw)
		if err := store.SetKeyParams(crypter.Serialize()); err != nil {
			return nil, fmt.Errorf("error storing key parameters: %w", err)
		}
		return crypter, nil
	}
	crypter, err := encrypt.Deserialize(pw, keyParams)
	if err != nil {
		return nil, fmt.Errorf("encryption key deserialization error: %w", err)
	}
	return crypter, nil
}

// Run runs the core until the context is canceled, then disconnects and
// stops the refresh loops. Callers that start Run on a goroutine should wait
// on Ready before beginning operations.
func (c *Core) Run(ctx context.Context) {
	c.log.Infof("wallet session core started")
	// The context is stored as a field so the refresh loops started by later
	// operations are scoped to Run.
	c.ctx = ctx
	close(c.ready)
	<-ctx.Done()
	c.conn.Disconnect()
	c.balance.StopBalanceUpdates()
	c.history.StopPaymentUpdates()
	c.log.Infof("wallet session core off")
}

// Ready is closed when the Core is running and operations may begin.
func (c *Core) Ready() <-chan struct{} {
	return c.ready
}

// ctxOr returns the Core's run context, or a Background fallback if Run was
// not used. Observing the closed ready channel orders the read of c.ctx
// after Run's write.
func (c *Core) ctxOr() context.Context {
	select {
	case <-c.ready:
		return c.ctx
	default:
		return context.Background()
	}
}

// Connection returns the connection manager.
func (c *Core) Connection() *ConnectionManager { return c.conn }

// State returns the wallet state manager.
func (c *Core) State() *StateManager { return c.state }

// Balance returns the balance manager.
func (c *Core) Balance() *BalanceManager { return c.balance }

// History returns the transaction manager.
func (c *Core) History() *TransactionManager { return c.history }

// InitializeWallet acquires or generates the wallet credential, connects,
// sets the durable flags, and loads the wallet data.
func (c *Core) InitializeWallet(ctx context.Context) error {
	if err := c.conn.InitializeWallet(ctx); err != nil {
		return err
	}
	return c.afterConnect(ctx)
}

// ImportWallet validates and stores a user-supplied recovery phrase,
// connects, sets the durable flags, and loads the wallet data.
func (c *Core) ImportWallet(ctx context.Context, words string) error {
	if err := c.conn.ImportWallet(ctx, words); err != nil {
		return err
	}
	return c.afterConnect(ctx)
}

// InitializeFromCache connects using the transiently cached credential,
// skipping authentication. Returns false without error when the cache is
// absent or expired; the caller then falls back to InitializeWallet.
func (c *Core) InitializeFromCache(ctx context.Context) (bool, error) {
	ok, err := c.conn.InitializeFromCache(ctx)
	if !ok || err != nil {
		return ok, err
	}
	return true, c.afterConnect(ctx)
}

// afterConnect records the durable flags, loads the wallet data and starts
// the refresh loops.
func (c *Core) afterConnect(ctx context.Context) error {
	if err := c.state.SetHasWallet(true); err != nil {
		return err
	}
	if err := c.state.SetIsLoggedIn(true); err != nil {
		return err
	}
	c.LoadWalletData(ctx)
	runCtx := c.ctxOr()
	if err := c.balance.StartBalanceUpdates(runCtx); err != nil {
		c.log.Errorf("error starting balance updates: %v", err)
	}
	if err := c.history.StartPaymentUpdates(runCtx); err != nil {
		c.log.Errorf("error starting payment updates: %v", err)
	}
	return nil
}

// LoadWalletData refreshes the balance, the payment history and the wallet
// info snapshot concurrently, returning once all three have completed. A
// failed branch does not cancel its siblings; each manager records its own
// error and keeps its previous data.
func (c *Core) LoadWalletData(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		c.balance.UpdateBalance(ctx)
	}()
	go func() {
		defer wg.Done()
		c.history.LoadPaymentHistory(ctx)
	}()
	go func() {
		defer wg.Done()
		c.RefreshWalletInfo(ctx)
	}()
	wg.Wait()
}

// RefreshWalletInfo refreshes the cached wallet info snapshot. A failure
// keeps the previous snapshot and records the error.
func (c *Core) RefreshWalletInfo(ctx context.Context) error {
	if !c.svc.IsConnected() {
		c.log.Tracef("skipping wallet info refresh while disconnected")
		return nil
	}
	info, err := c.svc.WalletInfo(ctx)
	if err != nil {
		cerr := newError(walletInfoErr, "wallet info refresh error: %w", err)
		c.infoMtx.Lock()
		c.infoErr = cerr
		c.infoMtx.Unlock()
		return cerr
	}
	c.infoMtx.Lock()
	c.walletInfo = info
	c.infoErr = nil
	c.infoMtx.Unlock()
	return nil
}

// WalletInfo returns the cached wallet info snapshot and the error recorded
// by the last failed refresh.
func (c *Core) WalletInfo() (*wallet.Info, error) {
	c.infoMtx.RLock()
	defer c.infoMtx.RUnlock()
	return c.walletInfo, c.infoErr
}

func (c *Core) clearWalletInfo() {
	c.infoMtx.Lock()
	c.walletInfo = nil
	c.infoErr = nil
	c.infoMtx.Unlock()
}

// ExportMnemonic performs an authenticated read of the recovery phrase.
func (c *Core) ExportMnemonic() (string, error) {
	return c.state.ExportMnemonic()
}

// ValidateWalletState checks the durable flags against store truth.
func (c *Core) ValidateWalletState() (*Validation, error) {
	return c.state.ValidateWalletState()
}

// RepairWalletState validates and repairs the durable flags from store
// truth. Repair runs only when the caller asks; inconsistencies are never
// silently fixed in the background, so a crash between writes stays visible
// until the caller decides a repair is safe.
func (c *Core) RepairWalletState() (*Validation, error) {
	return c.state.RepairWalletState()
}

// Logout disconnects and clears session-scoped state only: the transient
// credential cache, the currency selection, the balance, the payment cache
// and the wallet info snapshot. The stored credential is retained.
func (c *Core) Logout() error {
	c.conn.Disconnect()
	c.store.ClearCache()
	if c.cfg.Currency != nil {
		c.cfg.Currency.Clear()
	}
	c.balance.ResetBalance()
	c.history.ClearPaymentHistory()
	c.clearWalletInfo()
	return c.state.SetIsLoggedIn(false)
}

// ResetWallet disconnects, deletes the stored credential, and clears all
// local state including the durable flags.
func (c *Core) ResetWallet() error {
	c.conn.Disconnect()
	if c.cfg.Currency != nil {
		c.cfg.Currency.Clear()
	}
	c.balance.ResetBalance()
	c.history.ClearPaymentHistory()
	return c.state.DeleteWallet()
}

// SessionState assembles a snapshot of the session for a consuming UI.
func (c *Core) SessionState() *SessionState {
	info, _ := c.WalletInfo()
	return &SessionState{
		Status:       c.conn.Status(),
		HasWallet:    c.state.HasWallet(),
		IsLoggedIn:   c.state.IsLoggedIn(),
		BalanceSat:   c.balance.BalanceSat(),
		PaymentCount: c.history.Count(),
		WalletInfo:   info,
	}
}
