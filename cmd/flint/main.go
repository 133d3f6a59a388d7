// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"flintwallet.org/flint/app"
	"flintwallet.org/flint/core"
	"flintwallet.org/flint/credstore"
	"flintwallet.org/flint/wallet"
	"flintwallet.org/flint/walletrpc"
	"golang.org/x/term"
)

// appName defines the application name.
const appName = "flint"

var (
	appCtx, cancel = context.WithCancel(context.Background())
	log            wallet.Logger
)

// promptPassword reads the application password from the terminal without
// echoing it.
func promptPassword() (string, error) {
	fmt.Print("App password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	if len(pass) == 0 {
		return "", fmt.Errorf("empty password not allowed")
	}
	return string(pass), nil
}

func runCore(cfg *app.Config) error {
	defer cancel() // for the earliest returns

	// Initialize logging.
	utc := !cfg.LocalLogs
	logMaker, closeLogger, err := app.InitLogging(cfg.LogPath, cfg.DebugLevel, true, utc)
	if err != nil {
		return err
	}
	defer closeLogger()
	log = logMaker.Logger("FLINT")
	log.Infof("%s version %v (Go version %s)", appName, app.Version, runtime.Version())
	if utc {
		log.Infof("Logging with UTC time stamps. Current local time is %v",
			time.Now().Local().Format("15:04:05 MST"))
	}

	defer func() {
		if pv := recover(); pv != nil {
			log.Criticalf("Uh-oh! \n\nPanic:\n\n%v\n\nStack:\n\n%v\n\n",
				pv, string(debug.Stack()))
		}
	}()

	appPass, err := promptPassword()
	if err != nil {
		return err
	}

	store, err := credstore.Open(cfg.Store(logMaker.Logger("STORE")))
	if err != nil {
		return fmt.Errorf("error opening credential store: %w", err)
	}
	if stamp, err := store.CredentialStamp(); err == nil && !stamp.IsZero() {
		log.Infof("Stored credential last written %s", stamp)
	}

	svc, err := walletrpc.New(cfg.Daemon(logMaker.Logger("RPC")))
	if err != nil {
		return fmt.Errorf("error creating wallet daemon client: %w", err)
	}

	sessionCore, err := core.New(&core.Config{
		Store:           store,
		Service:         svc,
		AppPass:         appPass,
		Logger:          logMaker.Logger("CORE"),
		Balance:         cfg.Balance(),
		HistoryInterval: cfg.HistoryInterval,
	})
	if err != nil {
		return fmt.Errorf("error creating session core: %w", err)
	}

	// Catch interrupt signals (e.g. ctrl+c).
	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-killChan
		log.Infof("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Run(appCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionCore.Run(appCtx)
		cancel() // in the event that Run returns prematurely
	}()
	<-sessionCore.Ready()

	// Begin the wallet session, preferring the cached credential.
	ok, err := sessionCore.InitializeFromCache(appCtx)
	if err != nil {
		log.Errorf("Cached initialization error: %v", err)
	}
	if !ok && err == nil {
		if err := sessionCore.InitializeWallet(appCtx); err != nil {
			log.Errorf("Wallet initialization error: %v", err)
		}
	}

	wg.Wait()
	return nil
}

func main() {
	// Parse configuration.
	cfg := app.DefaultConfig
	if err := app.ParseCLIConfig(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.ShowVer {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n",
			appName, app.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return
	}
	appData, configPath := app.ResolveCLIConfigPaths(&cfg)
	if err := app.ParseFileConfig(configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := app.ResolveConfig(appData, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := runCore(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
