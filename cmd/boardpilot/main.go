package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/Cheese-boardpilot/internal/config"
	"github.com/park285/Cheese-boardpilot/internal/obslog"
	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/internal/pilotbuilder"
	"github.com/park285/Cheese-boardpilot/internal/statusfeed"
	"github.com/park285/Cheese-boardpilot/pkg/pilotdto"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.Named("boardpilot")
	defer func() { _ = obslog.L().Sync() }()

	deps, err := pilotbuilder.New(cfg, obslog.L())
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	// Always release the engine, whatever path main leaves by.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Close(ctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	deps.OnEvent(printEvent)

	if deps.Feed != nil {
		if _, err := deps.Feed.Start(); err != nil {
			logger.Error("feed server", zap.Error(err))
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PilotColor != "" {
		run(ctx, deps.Dispatcher, pilotdto.Command{Type: pilotdto.CmdSelectColor, Color: cfg.PilotColor})
	}
	if cfg.PilotAuto {
		run(ctx, deps.Dispatcher, pilotdto.Command{Type: pilotdto.CmdSetAuto, On: true})
	}

	go readCommands(ctx, deps.Dispatcher)
	fmt.Println(helpText())

	<-ctx.Done()
	logger.Info("signal received, shutting down")
}

// readCommands runs console commands until stdin closes. EOF does not stop the
// pilot; only a signal does.
func readCommands(ctx context.Context, d *statusfeed.Dispatcher) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "help" {
			fmt.Println(helpText())
			continue
		}
		cmd, err := statusfeed.ParseLine(line)
		if err != nil {
			fmt.Printf("! %v\n", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		run(ctx, d, cmd)
	}
}

func run(ctx context.Context, d *statusfeed.Dispatcher, cmd pilotdto.Command) {
	ack := d.Dispatch(ctx, cmd)
	if ack.OK {
		if cmd.Type == pilotdto.CmdStatus && ack.Status != nil {
			st := ack.Status
			fmt.Printf("= %s color=%s auto=%v castling=%s budget=%s fen=%s\n",
				st.State, st.Color, st.Auto, st.Castling, st.Budget, st.LastFEN)
		}
		return
	}
	fmt.Printf("! %s\n", ack.Message)
}

func printEvent(ev pilot.Event) {
	if ev.Kind == pilot.EventState || ev.Message == "" {
		return
	}
	mark := "*"
	if ev.Kind == pilot.EventFailure {
		mark = "!"
	}
	fmt.Printf("%s %s\n", mark, ev.Message)
}

func helpText() string {
	return strings.Join([]string{
		"boardpilot commands:",
		"  white | black        select color and start the engine",
		"  move                 play one move",
		"  auto on|off          keep playing after each opponent move",
		"  castle KQkq          set castling rights (- for none)",
		"  depth N | movetime MS | nodes N",
		"  status | reset | help",
	}, "\n")
}
