package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/linkctl/internal/config"
	"github.com/danmuck/linkctl/internal/display"
	"github.com/danmuck/linkctl/internal/layout"
	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/logging"
	"github.com/danmuck/linkctl/internal/protocol/frame"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const termConfigPath = "cmd/linkterm/linkterm.toml"

var (
	// ErrNavigateBack signals caller-intent to return to the previous menu.
	ErrNavigateBack = errors.New("navigate back")
	// ErrNavigateExit signals caller-intent to exit the console.
	ErrNavigateExit = errors.New("navigate exit")
)

// App is the interactive link console. It drives a local Manager directly.
type App struct {
	reader  *bufio.Reader
	out     io.Writer
	outMu   sync.Mutex
	cfgPath string
	cfg     termConfig

	mgr     *link.Manager
	records *display.Log
	layouts *layout.Store
	mode    frame.Mode

	echoStop func()
	echoDone chan struct{}
}

func main() {
	cfgPath := flag.String("config", termConfigPath, "linkterm preferences file")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg, err := loadTermConfig(*cfgPath)
	if err != nil {
		log.Error().Err(err).Msg("linkterm")
		os.Exit(1)
	}
	linkCfg, err := loadLinkConfig(cfg.LinkConfig)
	if err != nil {
		log.Error().Err(err).Msg("linkterm")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(os.Stdin, os.Stdout, *cfgPath, cfg, linkCfg)
	if err != nil {
		log.Error().Err(err).Msg("linkterm")
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("linkterm")
		os.Exit(1)
	}
}

func loadLinkConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("linkterm link config missing; using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func NewApp(in io.Reader, out io.Writer, cfgPath string, cfg termConfig, linkCfg config.Config) (*App, error) {
	mode, err := frame.ParseMode(cfg.SendMode)
	if err != nil {
		return nil, err
	}
	sessCfg, err := linkCfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	records, err := display.Open(linkCfg.DisplayOptions())
	if err != nil {
		return nil, err
	}
	layouts, err := layout.Open(linkCfg.Layouts.Path)
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	mgr := link.NewManager(sessCfg, records)
	if err := mgr.Configure(context.Background(), linkCfg.Connection); err != nil {
		_ = mgr.Close()
		_ = records.Close()
		return nil, err
	}
	return &App{
		reader:  bufio.NewReader(in),
		out:     out,
		cfgPath: cfgPath,
		cfg:     cfg,
		mgr:     mgr,
		records: records,
		layouts: layouts,
		mode:    mode,
	}, nil
}

// Run executes the main menu loop until exit, EOF or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.LiveEcho {
		a.startEcho()
	}
	go func() {
		<-ctx.Done()
		// unblocks a pending Start; the prompt itself exits on the next line or EOF
		_ = a.mgr.Stop(context.Background())
	}()

	log.Info().
		Str("role", string(a.mgr.Config().Role)).
		Int("records", a.records.Len()).
		Int("layouts", len(a.layouts.Names())).
		Msg("linkterm loaded")

	for ctx.Err() == nil {
		a.printMainMenu()
		choice, err := a.promptInt("Choose", 1, 11, false, true)
		if err != nil {
			if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
				return a.exit()
			}
			return err
		}
		a.clearIfEnabled()
		if err := a.dispatch(ctx, choice); err != nil {
			switch {
			case errors.Is(err, ErrNavigateExit), errors.Is(err, io.EOF):
				return a.exit()
			case errors.Is(err, ErrNavigateBack):
				continue
			default:
				a.printf("error: %v\n", err)
			}
		}
	}
	return a.exit()
}

func (a *App) dispatch(ctx context.Context, choice int) error {
	switch choice {
	case 1:
		a.showStatus()
	case 2:
		return a.configureConnection(ctx)
	case 3:
		if err := a.mgr.Start(ctx); err != nil {
			return err
		}
		a.showStatus()
	case 4:
		if err := a.mgr.Stop(ctx); err != nil {
			return err
		}
		a.showStatus()
	case 5:
		return a.sendPayload(ctx)
	case 6:
		a.toggleMode()
	case 7:
		enabled := !a.mgr.AutoRespond()
		if err := a.mgr.SetAutoRespond(ctx, enabled); err != nil {
			return err
		}
		a.printf("auto-responder: %s\n", onOff(enabled))
	case 8:
		a.showRecords(a.cfg.DisplayLimit)
	case 9:
		if err := a.records.Clear(); err != nil {
			return err
		}
		a.println("display log cleared")
	case 10:
		return a.runLayoutsMenu()
	case 11:
		return ErrNavigateExit
	}
	return nil
}

func (a *App) exit() error {
	a.stopEcho()
	if err := a.mgr.Close(); err != nil {
		log.Warn().Err(err).Msg("linkterm close session failed")
	}
	if err := a.records.Close(); err != nil {
		log.Warn().Err(err).Msg("linkterm close display log failed")
	}
	a.cfg.SendMode = string(a.mode)
	if a.cfgPath != "" {
		if err := saveTermConfig(a.cfgPath, a.cfg); err != nil {
			log.Warn().Err(err).Msg("linkterm save on exit failed")
		}
	}
	log.Info().Msg("linkterm exiting")
	return nil
}

func (a *App) printMainMenu() {
	st := a.mgr.Status()
	a.println()
	a.println("Link Console")
	a.printf("  session: %s  role: %s  peers: %d\n", st, a.mgr.Config().Role, len(a.mgr.Peers()))
	a.printf("  send mode: %s  auto-responder: %s  records: %d\n", a.mode, onOff(a.mgr.AutoRespond()), a.records.Len())
	a.println("  1) Show status")
	a.println("  2) Configure connection")
	a.println("  3) Start session")
	a.println("  4) Stop session")
	a.println("  5) Send payload")
	a.println("  6) Switch send mode (ascii/hex)")
	a.println("  7) Toggle auto-responder")
	a.println("  8) Show display log")
	a.println("  9) Clear display log")
	a.println("  10) Layouts")
	a.println("  11) Exit")
}

func (a *App) showStatus() {
	conn := a.mgr.Config()
	a.printf("status: %s\n", a.mgr.Status())
	a.printf("role: %s\n", conn.Role)
	switch conn.Role {
	case session.RoleListener:
		a.printf("local: %s\n", conn.LocalAddr())
		if addr := a.mgr.ListenAddr(); addr != "" {
			a.printf("bound: %s\n", addr)
		}
	case session.RoleConnector:
		a.printf("remote: %s\n", conn.RemoteAddr())
	}
	for _, p := range a.mgr.Peers() {
		a.printf("  peer %s %s since %s\n", p.ID, p.RemoteAddr, p.AttachedAt.Format(time.RFC3339))
	}
}

func (a *App) configureConnection(ctx context.Context) error {
	cur := a.mgr.Config()
	next := cur

	raw, err := a.promptDefault("Role (listener|connector)", string(cur.Role))
	if err != nil {
		return err
	}
	role, err := session.ParseRole(raw)
	if err != nil {
		return err
	}
	next.Role = role

	if role == session.RoleListener {
		if next.LocalAddress, err = a.promptDefault("Local address", cur.LocalAddress); err != nil {
			return err
		}
		if next.LocalPort, err = a.promptPort("Local port", cur.LocalPort); err != nil {
			return err
		}
	} else {
		if next.RemoteAddress, err = a.promptDefault("Remote address", cur.RemoteAddress); err != nil {
			return err
		}
		if next.RemotePort, err = a.promptPort("Remote port", cur.RemotePort); err != nil {
			return err
		}
	}
	if err := a.mgr.Configure(ctx, next); err != nil {
		return err
	}
	a.println("connection configured")
	a.showStatus()
	return nil
}

func (a *App) sendPayload(ctx context.Context) error {
	label := "Payload (\\xx escapes)"
	if a.mode == frame.ModeHex {
		label = "Payload (hex)"
	}
	input, err := a.promptLine(label)
	if err != nil {
		return err
	}
	res, err := a.mgr.SendFrame(ctx, a.mode, input)
	if err != nil {
		return err
	}
	a.printf("sent: delivered=%d failed=%d\n", res.Delivered, res.Failed)
	for _, e := range res.Errors {
		a.printf("  %s\n", e)
	}
	return nil
}

func (a *App) toggleMode() {
	if a.mode == frame.ModeASCII {
		a.mode = frame.ModeHex
	} else {
		a.mode = frame.ModeASCII
	}
	a.printf("send mode: %s\n", a.mode)
}

func (a *App) showRecords(limit int) {
	recs := a.records.Records(limit)
	if len(recs) == 0 {
		a.println("(no records)")
		return
	}
	for _, rec := range recs {
		a.println(formatRecord(rec))
	}
}

func formatRecord(rec display.Record) string {
	arrow := "->"
	if rec.Direction == display.DirectionReceived {
		arrow = "<-"
	}
	return fmt.Sprintf("#%d %s %s %s %q hex=%s", rec.Seq, rec.At.Format("15:04:05.000"), arrow, rec.Peer, rec.Text, rec.Hex)
}

func (a *App) runLayoutsMenu() error {
	for {
		a.println()
		a.println("Layouts")
		a.printf("  store: %s\n", a.layouts.Path())
		a.println("  1) List layouts")
		a.println("  2) Show layout")
		a.println("  3) Create empty layout")
		a.println("  4) Add field")
		a.println("  5) Delete field")
		a.println("  6) Delete layout")
		a.println("  7) Back")
		choice, err := a.promptInt("Choose", 1, 7, true, true)
		if err != nil {
			return err
		}
		if choice == 7 {
			return ErrNavigateBack
		}
		if err := a.layoutAction(choice); err != nil {
			switch {
			case errors.Is(err, ErrNavigateExit), errors.Is(err, io.EOF):
				return err
			case errors.Is(err, ErrNavigateBack):
			default:
				a.printf("error: %v\n", err)
			}
		}
	}
}

func (a *App) layoutAction(choice int) error {
	if choice == 1 {
		for _, l := range a.layouts.All() {
			a.printf("  %s (fields=%d)\n", l.Name, len(l.Fields))
		}
		return nil
	}
	name, err := a.promptLine("Layout name")
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)

	switch choice {
	case 2:
		l, err := a.layouts.Get(name)
		if err != nil {
			return err
		}
		a.printLayout(l)
	case 3:
		l, err := a.layouts.Save(name, nil)
		if err != nil {
			return err
		}
		a.printf("created %s\n", l.Name)
	case 4:
		f, err := a.promptField()
		if err != nil {
			return err
		}
		l, err := a.layouts.AddField(name, f)
		if err != nil {
			return err
		}
		a.printLayout(l)
	case 5:
		idx, err := a.promptInt("Field index", 0, layout.MaxBMPPosition, true, true)
		if err != nil {
			return err
		}
		l, err := a.layouts.DeleteField(name, idx)
		if err != nil {
			return err
		}
		a.printLayout(l)
	case 6:
		if err := a.layouts.Delete(name); err != nil {
			return err
		}
		a.printf("deleted %s\n", name)
	}
	return nil
}

func (a *App) printLayout(l layout.Layout) {
	a.printf("%s\n", l.Name)
	for i, f := range l.Fields {
		a.printf("  [%d] bmp=%d %s %s %s filler=%q name=%q default=%q\n",
			i, f.BMPPosition, f.LengthType, f.DataType, f.Justification, f.Filler, f.FieldName, f.DefaultValue)
	}
}

func (a *App) promptField() (layout.Field, error) {
	var (
		f   layout.Field
		err error
	)
	if f.BMPPosition, err = a.promptInt("BMP position", 1, layout.MaxBMPPosition, true, true); err != nil {
		return f, err
	}
	prompts := []struct {
		label string
		def   string
		dst   *string
	}{
		{"Length type (fixed|variable)", string(layout.LengthFixed), (*string)(&f.LengthType)},
		{"Data type (numeric|alphanumeric)", string(layout.DataAlphanumeric), (*string)(&f.DataType)},
		{"Justification (left|right)", string(layout.JustifyLeft), (*string)(&f.Justification)},
		{"Filler", " ", &f.Filler},
		{"Field name", "", &f.FieldName},
		{"Default value", "", &f.DefaultValue},
	}
	for _, p := range prompts {
		v, err := a.promptDefault(p.label, p.def)
		if err != nil {
			return f, err
		}
		*p.dst = v
	}
	return f, nil
}

// startEcho prints records as they are appended.
func (a *App) startEcho() {
	ch, cancel := a.records.Subscribe(64)
	done := make(chan struct{})
	a.echoStop = cancel
	a.echoDone = done
	go func() {
		defer close(done)
		for rec := range ch {
			a.println(formatRecord(rec))
		}
	}()
}

func (a *App) stopEcho() {
	if a.echoStop == nil {
		return
	}
	a.echoStop()
	<-a.echoDone
	a.echoStop = nil
}

func (a *App) clearIfEnabled() {
	if a.cfg.ClearScreen {
		a.printf("\033[H\033[2J")
	}
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) promptLine(label string) (string, error) {
	if strings.TrimSpace(label) != "" {
		a.printf("%s: ", label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptDefault returns def when the answer is blank.
func (a *App) promptDefault(label, def string) (string, error) {
	line, err := a.promptLine(fmt.Sprintf("%s [%s]", label, def))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) == "" {
		return def, nil
	}
	return strings.TrimSpace(line), nil
}

func (a *App) promptPort(label string, def int) (int, error) {
	for {
		raw, err := a.promptDefault(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 65535 {
			a.println("Invalid port.")
			continue
		}
		return v, nil
	}
}

func (a *App) promptInt(label string, min int, max int, allowBack bool, allowExit bool) (int, error) {
	for {
		rangePrompt := fmt.Sprintf("%s [%d-%d", label, min, max)
		if allowBack {
			rangePrompt += "|back|b"
		}
		if allowExit {
			rangePrompt += "|exit|e"
		}
		rangePrompt += "]"
		line, err := a.promptLine(rangePrompt)
		if err != nil {
			return 0, err
		}
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if allowBack && (trimmed == "back" || trimmed == "b") {
			return 0, ErrNavigateBack
		}
		if allowExit && (trimmed == "exit" || trimmed == "e") {
			return 0, ErrNavigateExit
		}
		v, err := strconv.Atoi(trimmed)
		if err != nil || v < min || v > max {
			a.println("Invalid selection.")
			continue
		}
		return v, nil
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
