// Command plantwin runs the reverse-osmosis plant digital twin: a Modbus
// TCP slave and an HTTP publish API sharing one simulation clock. Shutdown
// sequencing follows GVCUTV-NRG-CHAMP/room_simulator/main.go's signal ->
// cancel -> close pattern.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roplant/wtptwin/internal/config"
	"github.com/roplant/wtptwin/internal/metrics"
	"github.com/roplant/wtptwin/internal/modbus"
	"github.com/roplant/wtptwin/internal/plant"
	"github.com/roplant/wtptwin/internal/publish"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Parse(os.Args[1:], time.Now().UnixNano())
	if err != nil {
		os.Exit(1) // go-flags has already printed usage/error
	}

	log.Info("plantwin: starting",
		"modbus_addr", cfg.ModbusAddr,
		"http_addr", cfg.HTTPAddr,
		"tick_ms", cfg.TickMs,
		"warmup_ticks", cfg.WarmupTicks,
		"seed", cfg.Seed)

	state := plant.New(cfg.Seed)
	reg := metrics.New()

	dt := cfg.TickPeriod().Seconds()
	log.Info("plantwin: running warmup ticks", "count", cfg.WarmupTicks)
	for i := 0; i < cfg.WarmupTicks; i++ {
		state.Tick(dt)
	}

	pub := &publish.Server{
		State:          state,
		Metrics:        reg,
		Log:            log,
		MetricsHandler: reg.Handler(),
	}

	modbusSrv := &modbus.Server{
		State:       state,
		IdleTimeout: cfg.IdleTimeout(),
		Metrics:     reg,
		Log:         log,
	}

	ctx, cancel := context.WithCancel(context.Background())

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: pub.Router(),
	}

	errc := make(chan error, 2)
	go func() {
		log.Info("plantwin: http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	go bindModbus(ctx, modbusSrv, cfg, log, errc)

	go tickLoop(ctx, state, reg, pub, cfg.TickPeriod())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	fatal := false
	select {
	case <-stop:
		log.Info("plantwin: shutdown signal received")
	case err := <-errc:
		log.Error("plantwin: fatal server error, shutting down", "error", err)
		fatal = true
	}

	pub.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("plantwin: http shutdown did not complete cleanly", "error", err)
	}

	log.Info("plantwin: bye")
	if fatal {
		os.Exit(1)
	}
}

// bindModbus tries the primary address, falling back to ModbusFallback if
// the bind fails (spec.md §6.6: default :502 falls back to :5020, since
// binding a privileged port often fails outside a container run as root).
// It blocks until ctx is canceled or ListenAndServe fails on both
// addresses, in which case the failure is pushed onto errc so main treats
// it as fatal (spec.md §7: bind failure on startup exits non-zero).
func bindModbus(ctx context.Context, srv *modbus.Server, cfg *config.Config, log *slog.Logger, errc chan<- error) {
	addr := cfg.ModbusAddr
	if probe, err := net.Listen("tcp", addr); err != nil {
		log.Warn("plantwin: modbus primary bind failed, falling back", "addr", addr, "fallback", cfg.ModbusFallback, "error", err)
		addr = cfg.ModbusFallback
	} else {
		probe.Close()
	}
	log.Info("plantwin: modbus listening", "addr", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		errc <- err
	}
}

// tickLoop paces the physics tick against the wall clock, using the
// declared dt for integration (deterministic) while a real ticker keeps the
// loop from racing ahead of real time (spec.md §9: "pace the loop against a
// real clock ... so a paused debugger does not warp the simulation").
func tickLoop(ctx context.Context, state *plant.State, reg *metrics.Registry, pub *publish.Server, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	dt := period.Seconds()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state.Tick(dt)
			reg.IncTick()
			pub.Broadcast(state.Snapshot())
		}
	}
}
