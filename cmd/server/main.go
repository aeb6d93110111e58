// Command server is the process entrypoint: it loads configuration,
// wires the lobby/ranch/race Command Servers and their directors, the
// shared Room Registry and OTP system, the UDP relay, and the HTTP
// status surface, then runs every director's tick loop until an
// interrupt signal arrives. Grounded on fourst4r-pr2server's main.go
// (launch each subsystem as a goroutine, block on os.Interrupt), with
// the CLI surface itself modeled on mcoot-crosswordgame-go2's cobra
// root-command pattern (internal/cli/root.go).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/config"
	"github.com/alborrajo/alicia-server/internal/datadirector"
	"github.com/alborrajo/alicia-server/internal/infraction"
	"github.com/alborrajo/alicia-server/internal/logging"
	"github.com/alborrajo/alicia-server/internal/lobby"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/race"
	"github.com/alborrajo/alicia-server/internal/ranch"
	"github.com/alborrajo/alicia-server/internal/relay"
	"github.com/alborrajo/alicia-server/internal/room"
	"github.com/alborrajo/alicia-server/internal/status"
)

// tickInterval is how often every director's Tick is driven. 50ms
// matches a 20Hz simulation step, comfortably inside the wait/load/
// finish timeouts internal/race defines.
const tickInterval = 50 * time.Millisecond

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var configPath string
	var redisAddr string

	cmd := &cobra.Command{
		Use:   "alicia-server",
		Short: "Dedicated server for the Alicia-style horse racing MMO core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.LoadFile(configPath); err != nil {
				return err
			}
			return run(cfg, redisAddr)
		},
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json", "path to a JSON config file")
	flags.StringVar(&redisAddr, "redis-addr", "", "Redis address for the data director (empty uses the in-memory director)")

	flags.StringVar(&cfg.Lobby.Listen.Address, "listen.lobby.address", cfg.Lobby.Listen.Address, "lobby tier bind address")
	flags.IntVar(&cfg.Lobby.Listen.Port, "listen.lobby.port", cfg.Lobby.Listen.Port, "lobby tier bind port")
	flags.StringVar(&cfg.Ranch.Listen.Address, "listen.ranch.address", cfg.Ranch.Listen.Address, "ranch tier bind address")
	flags.IntVar(&cfg.Ranch.Listen.Port, "listen.ranch.port", cfg.Ranch.Listen.Port, "ranch tier bind port")
	flags.StringVar(&cfg.Race.Listen.Address, "listen.race.address", cfg.Race.Listen.Address, "race tier bind address")
	flags.IntVar(&cfg.Race.Listen.Port, "listen.race.port", cfg.Race.Listen.Port, "race tier bind port")

	flags.StringVar(&cfg.Advertisement.Ranch.Address, "advertisement.ranch.address", cfg.Advertisement.Ranch.Address, "ranch address advertised to clients")
	flags.IntVar(&cfg.Advertisement.Ranch.Port, "advertisement.ranch.port", cfg.Advertisement.Ranch.Port, "ranch port advertised to clients")
	flags.StringVar(&cfg.Advertisement.Race.Address, "advertisement.race.address", cfg.Advertisement.Race.Address, "race address advertised to clients")
	flags.IntVar(&cfg.Advertisement.Race.Port, "advertisement.race.port", cfg.Advertisement.Race.Port, "race port advertised to clients")

	flags.StringVar(&cfg.General.Notice, "general.notice", cfg.General.Notice, "lobby login notice ({players_online} is substituted)")

	flags.StringVar(&cfg.StatusListen.Address, "status.address", cfg.StatusListen.Address, "status HTTP surface bind address")
	flags.IntVar(&cfg.StatusListen.Port, "status.port", cfg.StatusListen.Port, "status HTTP surface bind port")
	flags.StringVar(&cfg.RelayListen.Address, "relay.address", cfg.RelayListen.Address, "UDP relay bind address")
	flags.IntVar(&cfg.RelayListen.Port, "relay.port", cfg.RelayListen.Port, "UDP relay bind port")

	return cmd
}

func run(cfg *config.Config, redisAddr string) error {
	if err := logging.Init(logging.DefaultConfig()); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.ComponentLogger("main")

	data, err := newDataDirector(redisAddr)
	if err != nil {
		return fmt.Errorf("init data director: %w", err)
	}

	rooms := room.NewRegistry()
	otps := otp.New()

	snapshot := cfg.Snapshot()

	lobbyDirector := lobby.New(data, otps, rooms, infraction.AlwaysClear{}, snapshot, logging.ComponentLogger("lobby"))
	lobbyServer := command.NewServer(lobbyDirector, logging.ComponentLogger("command.lobby"))
	lobbyDirector.Attach(lobbyServer)

	ranchDirector := ranch.New(otps, logging.ComponentLogger("ranch"))
	ranchServer := command.NewServer(ranchDirector, logging.ComponentLogger("command.ranch"))
	ranchDirector.Attach(ranchServer)

	raceDirector := race.New(rooms, otps, logging.ComponentLogger("race"))
	raceServer := command.NewServer(raceDirector, logging.ComponentLogger("command.race"))
	raceDirector.Attach(raceServer)

	relayServer := relay.New(logging.ComponentLogger("relay"))

	statusServer := status.New(status.Dependencies{
		Rooms:           rooms,
		LobbyQueueDepth: lobbyDirector.QueueDepth,
		Lobby:           status.TierAddress{Address: snapshot.Lobby.Listen.Address, Port: snapshot.Lobby.Listen.Port},
		Ranch:           status.TierAddress{Address: snapshot.Ranch.Listen.Address, Port: snapshot.Ranch.Listen.Port},
		Race:            status.TierAddress{Address: snapshot.Race.Listen.Address, Port: snapshot.Race.Listen.Port},
	}, logging.ComponentLogger("status"))

	errs := make(chan error, 6)
	go serveOrReport(errs, "lobby", func() error {
		return lobbyServer.ListenAndServe(listenAddr(snapshot.Lobby.Listen))
	})
	go serveOrReport(errs, "ranch", func() error {
		return ranchServer.ListenAndServe(listenAddr(snapshot.Ranch.Listen))
	})
	go serveOrReport(errs, "race", func() error {
		return raceServer.ListenAndServe(listenAddr(snapshot.Race.Listen))
	})
	go serveOrReport(errs, "relay", func() error {
		return relayServer.ListenAndServe(listenAddr(snapshot.RelayListen))
	})
	go serveOrReport(errs, "status", func() error {
		return statusServer.ListenAndServe(listenAddr(snapshot.StatusListen))
	})

	tickerStop := make(chan struct{})
	go runTickLoop(tickerStop, lobbyDirector, raceDirector)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Stringer("signal", s).Msg("shutting down")
	case err := <-errs:
		log.Error().Err(err).Msg("subsystem failed, shutting down")
	}

	close(tickerStop)
	lobbyServer.Close()
	ranchServer.Close()
	raceServer.Close()
	relayServer.Close()
	return nil
}

type ticker interface {
	Tick()
}

func runTickLoop(stop <-chan struct{}, directors ...ticker) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, d := range directors {
				d.Tick()
			}
		}
	}
}

func serveOrReport(errs chan<- error, name string, serve func() error) {
	if err := serve(); err != nil {
		errs <- fmt.Errorf("%s: %w", name, err)
	}
}

func newDataDirector(redisAddr string) (datadirector.Director, error) {
	if redisAddr == "" {
		return datadirector.NewMemory(), nil
	}
	return datadirector.NewRedis(redisAddr, "", 0)
}

func listenAddr(l config.ListenConfig) string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}
