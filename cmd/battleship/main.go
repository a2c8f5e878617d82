package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"battleship-zk/internal/app"
	"battleship-zk/internal/auth"
	"battleship-zk/internal/codec"
	"battleship-zk/internal/config"
	"battleship-zk/internal/events"
	"battleship-zk/internal/game"
	"battleship-zk/internal/logging"
	"battleship-zk/internal/match"
	"battleship-zk/internal/oracle"
	"battleship-zk/internal/registry"
	"battleship-zk/internal/server"
	"battleship-zk/internal/store"
	"battleship-zk/internal/zk"
)

var commands = map[string]func(args []string) error{
	"serve":  cmdServe,
	"board":  cmdBoard,
	"commit": cmdCommit,
	"setup":  cmdSetup,
	"prove":  cmdProve,
	"verify": cmdVerify,
	"token":  cmdToken,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Battleship-ZK coordinator

Commands:
  serve   [--addr :8080] [--store memory|redis://...] [--verifier groth16|placeholder] ...
  setup   --keys ./keys
  board   --out board.json
  commit  --board board.json --secret secret.json
  prove   --secret secret.json --keys ./keys --session N --x X --y Y --out proof.json
  verify  --vk ./keys/shot.vk --proof proof.json [--x X --y Y]
  token   --player ADDRESS

Settings also come from BATTLESHIP_* environment variables and .env.`)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, err := config.Bind(fs, nil)
	if err != nil {
		return err
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := openVerifier(cfg, log)
	if err != nil {
		return err
	}

	var reg registry.Registry = registry.NewClient(cfg.RegistryURL)
	if cfg.RegistryURL == "" {
		log.Warn().Msg("no game hub configured, sessions are only recorded in memory")
		reg = &registry.Recorder{}
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Game, cfg.TokenTTL)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	engine := match.NewEngine(st, reg, verifier, match.Options{
		Game:          cfg.Game,
		TTL:           cfg.TTL,
		VerifyTimeout: cfg.VerifyTimeout,
		Events:        bus,
		Logger:        &log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(engine, tokens, bus, log).Handler(cfg.AllowOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("store", storeKind(cfg.Store)).Str("verifier", cfg.Verifier).Msg("serving")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Ends websocket streams before draining the listener.
		bus.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}

func storeKind(s string) string {
	if s == config.StoreMemory {
		return s
	}
	return "redis"
}

func openStore(ctx context.Context, url string) (store.Store, func(), error) {
	if url == config.StoreMemory {
		return store.NewMemory(), func() {}, nil
	}
	r, err := store.NewRedis(ctx, url, "battleship:")
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

func openVerifier(cfg *config.Config, log zerolog.Logger) (oracle.Verifier, error) {
	if cfg.Verifier == config.VerifierPlaceholder {
		log.Warn().Msg("placeholder verifier accepts any non-zero proof; do not use it where results matter")
		return oracle.Placeholder{}, nil
	}
	vkPath := filepath.Join(cfg.KeysDir, zk.VerifyingKeyFile)
	vk, err := zk.LoadVerifyingKey(vkPath)
	if err != nil {
		return nil, fmt.Errorf("load verifying key %s (run setup first): %w", vkPath, err)
	}
	return zk.NewGroth16Verifier(vk), nil
}

func cmdSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	keysDir := fs.String("keys", "./keys", "keys directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := zk.EnsureKeys(*keysDir); err != nil {
		return err
	}
	fmt.Println("✓ keys in", *keysDir)
	return nil
}

func cmdBoard(args []string) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	out := fs.String("out", "board.json", "output board file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := app.InitBoard(nil)
	if err != nil {
		return err
	}
	if err := codec.SaveJSON(*out, b); err != nil {
		return err
	}
	fmt.Println("✓ wrote", *out)
	return nil
}

func cmdCommit(args []string) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	boardPath := fs.String("board", "board.json", "board file")
	secretPath := fs.String("secret", "secret.json", "defender secret state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var b game.Board
	if err := codec.LoadJSON(*boardPath, &b); err != nil {
		return err
	}
	sec, err := app.Commit(b)
	if err != nil {
		return err
	}
	if err := codec.SaveJSON(*secretPath, sec); err != nil {
		return err
	}
	fmt.Println("COMMITMENT:", sec.Commitment)
	fmt.Println("✓ wrote", *secretPath)
	return nil
}

func cmdProve(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	secretPath := fs.String("secret", "secret.json", "defender secret state")
	keysDir := fs.String("keys", "./keys", "keys directory")
	session := fs.Uint32("session", 0, "match session id")
	x := fs.Int("x", 0, "row [0..9]")
	y := fs.Int("y", 0, "column [0..9]")
	out := fs.String("out", "proof.json", "proof output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var sec codec.Secret
	if err := codec.LoadJSON(*secretPath, &sec); err != nil {
		return err
	}
	keys, err := zk.LoadKeys(*keysDir)
	if err != nil {
		return fmt.Errorf("load keys (run setup first): %w", err)
	}
	p, err := app.Prove(keys, &sec, *session, *x, *y)
	if err != nil {
		return err
	}
	if err := codec.SaveJSON(*out, p); err != nil {
		return err
	}
	fmt.Printf("✓ wrote %s (result: %s)\n", *out, map[uint8]string{0: "MISS", 1: "HIT"}[p.Response])
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	vkPath := fs.String("vk", "./keys/"+zk.VerifyingKeyFile, "verifying key file")
	proofPath := fs.String("proof", "proof.json", "proof file")
	x := fs.Int("x", -1, "expected row, -1 to skip")
	y := fs.Int("y", -1, "expected column, -1 to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	vk, err := zk.LoadVerifyingKey(*vkPath)
	if err != nil {
		return err
	}
	var p codec.ShotProof
	if err := codec.LoadJSON(*proofPath, &p); err != nil {
		return err
	}
	ok, err := app.Verify(context.Background(), zk.NewGroth16Verifier(vk), &p, *x, *y)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("invalid proof")
	}
	fmt.Println(map[uint8]string{0: "MISS", 1: "HIT"}[p.Response])
	return nil
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	cfg, err := config.Bind(fs, nil)
	if err != nil {
		return err
	}
	player := fs.String("player", "", "player address the token speaks for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Game, cfg.TokenTTL)
	if err != nil {
		return err
	}
	tok, err := tokens.Mint(*player)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
