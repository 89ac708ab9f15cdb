package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GoPolymarket/frontdoor/internal/app"
	"github.com/GoPolymarket/frontdoor/internal/config"
	"github.com/GoPolymarket/frontdoor/internal/middleware"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

var flagConfig *cli.StringFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to frontdoor config file (defaults to ./config.yaml, ./configs/config.yaml)",
}

var flagProfile *cli.StringFlag = &cli.StringFlag{
	Name:  "profile",
	Usage: "Path to a runtime profile (yaml, json or toml)",
}

var flagIntent *cli.StringFlag = &cli.StringFlag{
	Name:  "intent",
	Usage: "Describe the strategy and let the gateway draft the profile; the profile file overrides drafted fields",
}

var flagWallet *cli.StringFlag = &cli.StringFlag{
	Name:  "wallet",
	Usage: "Bound wallet address to check user_wallet_address against",
}

var flagSession *cli.StringFlag = &cli.StringFlag{
	Name:  "session",
	Usage: "Launch session id",
}

var flagServer *cli.StringFlag = &cli.StringFlag{
	Name:  "server",
	Value: "ws://127.0.0.1:8787",
	Usage: "Companion API address",
}

var flagAPIKey *cli.StringFlag = &cli.StringFlag{
	Name:    "api-key",
	EnvVars: []string{"FRONTDOOR_AUTH_API_KEY"},
	Usage:   "Companion API key",
}

func main() {
	app := &cli.App{
		Name:  "frontdoor",
		Usage: "Sign in with a wallet and launch a runtime profile",
		Flags: []cli.Flag{flagConfig},
		Commands: []*cli.Command{
			{
				Name:   "bootstrap",
				Usage:  "Show what the deployment supports",
				Action: runBootstrap,
			},
			{
				Name:   "validate",
				Usage:  "Validate a profile offline",
				Flags:  []cli.Flag{flagProfile, flagWallet},
				Action: runValidate,
			},
			{
				Name:   "launch",
				Usage:  "Connect, sign in, validate, launch and wait for the instance",
				Flags:  []cli.Flag{flagProfile, flagIntent},
				Action: runLaunch,
			},
			{
				Name:   "status",
				Usage:  "Read a launch session once",
				Flags:  []cli.Flag{flagSession},
				Action: runStatus,
			},
			{
				Name:   "resume",
				Usage:  "Wait on a launch started earlier (defaults to the wallet's active launch)",
				Flags:  []cli.Flag{flagSession},
				Action: runResume,
			},
			{
				Name:   "watch",
				Usage:  "Follow launch progress from a running companion API",
				Flags:  []cli.Flag{flagServer, flagAPIKey},
				Action: runWatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if appErr := apperrors.Wrap(err); appErr.Suggestion != "" {
			log.Fatalf("%s: %s. %s", appErr.Type, appErr.Error(), appErr.Suggestion)
		}
		log.Fatal(err)
	}
}

func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(cCtx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}
	logger.InitWithOptions(logger.Options{Level: cfg.Log.Level, Service: "frontdoor-cli", Output: os.Stderr})
	return cfg, nil
}

func newApp(cCtx *cli.Context, navigate func(string)) (*app.App, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}
	return app.New(cCtx.Context, cfg, app.Options{Navigate: navigate})
}

func runBootstrap(cCtx *cli.Context) error {
	a, err := newApp(cCtx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	boot, err := a.Orchestrator.Bootstrap(cCtx.Context)
	if err != nil {
		return err
	}
	return printJSON(boot)
}

func runValidate(cCtx *cli.Context) error {
	if cCtx.String(flagProfile.Name) == "" {
		return fmt.Errorf("--%s is required", flagProfile.Name)
	}
	fields, err := profile.LoadFile(cCtx.String(flagProfile.Name))
	if err != nil {
		return err
	}
	cfg, err := profile.Validate(fields, cCtx.String(flagWallet.Name))
	if err != nil {
		return err
	}
	payload := cfg.Payload()
	delete(payload, "gateway_auth_key")
	return printJSON(payload)
}

func runLaunch(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cCtx, func(url string) {
		fmt.Printf("Instance ready: %s\n", url)
	})
	if err != nil {
		return err
	}
	defer a.Close()
	o := a.Orchestrator

	if _, err := o.Bootstrap(ctx); err != nil {
		return err
	}
	id, err := o.ConnectWallet(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Wallet %s on chain %d\n", id.WalletAddress, id.ChainID)

	if id, err = o.Authenticate(ctx); err != nil {
		return err
	}
	if id.DelegatedUserID != "" {
		fmt.Printf("Signed in as %s\n", id.DelegatedUserID)
	}

	fields, err := profileFields(ctx, cCtx, a)
	if err != nil {
		return err
	}
	if _, err := o.ValidateConfig(fields); err != nil {
		return err
	}

	ls, err := o.Launch(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Launch session %s submitted\n", ls.SessionID)
	return wait(ctx, a)
}

// profileFields merges a gateway draft (when --intent is set) with the
// profile file, falling back to launch.profile_path from config.
func profileFields(ctx context.Context, cCtx *cli.Context, a *app.App) (profile.Fields, error) {
	fields := profile.Fields{}
	if intent := cCtx.String(flagIntent.Name); intent != "" {
		draft, err := a.Orchestrator.SuggestConfig(ctx, intent, "")
		if err != nil {
			return nil, err
		}
		for _, w := range draft.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		fields = fields.Merge(profile.Fields(draft.Config))
	}

	path := cCtx.String(flagProfile.Name)
	if path == "" {
		path = a.Config.Launch.ProfilePath
	}
	if path != "" {
		fromFile, err := profile.LoadFile(path)
		if err != nil {
			return nil, err
		}
		fields = fields.Merge(fromFile)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("pass --%s or --%s", flagProfile.Name, flagIntent.Name)
	}
	return fields, nil
}

func runStatus(cCtx *cli.Context) error {
	sessionID := cCtx.String(flagSession.Name)
	if sessionID == "" {
		return fmt.Errorf("--%s is required", flagSession.Name)
	}
	a, err := newApp(cCtx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Gateway.Session(cCtx.Context, sessionID)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runResume(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cCtx, func(url string) {
		fmt.Printf("Instance ready: %s\n", url)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID := cCtx.String(flagSession.Name)
	if sessionID == "" {
		if _, err := a.Orchestrator.ConnectWallet(ctx); err != nil {
			return err
		}
	}
	ls, err := a.Orchestrator.Resume(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("Resuming launch session %s\n", ls.SessionID)
	return wait(ctx, a)
}

func wait(ctx context.Context, a *app.App) error {
	cancel := a.Orchestrator.Subscribe(func(u poller.Update) {
		if u.Terminal {
			return
		}
		line := fmt.Sprintf("[%3d%%] %s", u.Progress, u.Status)
		if u.Detail != "" {
			line += " - " + u.Detail
		}
		fmt.Println(line)
	})
	defer cancel()

	res, err := a.Orchestrator.WaitForTerminal(ctx)
	if err != nil {
		return err
	}
	if res.Session != nil && res.Session.Error != "" {
		return fmt.Errorf("launch %s: %s", res.Status, res.Session.Error)
	}
	if res.Destination == "" {
		return fmt.Errorf("launch ended with status %s", res.Status)
	}
	return nil
}

// runWatch follows the companion API stream until a terminal update.
func runWatch(cCtx *cli.Context) error {
	url := strings.TrimRight(cCtx.String(flagServer.Name), "/") + "/v1/launch/stream"
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)

	header := http.Header{}
	if key := cCtx.String(flagAPIKey.Name); key != "" {
		header.Set(middleware.HeaderAPIKey, key)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(cCtx.Context, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	for {
		var u poller.Update
		if err := conn.ReadJSON(&u); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := printJSON(u); err != nil {
			return err
		}
		if u.Terminal {
			return nil
		}
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
