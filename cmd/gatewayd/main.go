// Copyright 2018 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// gatewayd hosts the proxies, gateways and bridges described by a YAML
// file, and serves their socket metrics to Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/droundy/goopt"
	"github.com/jpillora/requestlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway"
	"nanomsg.org/go/gateway/metrics"
)

var verbose int
var configPath string
var metricsAddr string

func init() {
	goopt.NoArg([]string{"--verbose", "-v"}, "Increase verbosity",
		func() error {
			verbose++
			return nil
		})
	goopt.NoArg([]string{"--silent", "-q"}, "Decrease verbosity",
		func() error {
			verbose--
			return nil
		})
	goopt.ReqArg([]string{"--config", "-c"}, "FILE", "Read configuration from FILE",
		func(s string) error {
			configPath = s
			return nil
		})
	goopt.ReqArg([]string{"--metrics", "-m"}, "ADDR", "Serve /metrics on ADDR",
		func(s string) error {
			metricsAddr = s
			return nil
		})

	goopt.Description = func() string {
		return `gatewayd runs messaging gateways, failover proxies and
bridges between gateways, as described by a YAML configuration file.`
	}
	goopt.Suite = "gateway"
	goopt.Summary = "messaging gateway daemon"
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func logLevel() zerolog.Level {
	switch {
	case verbose < 0:
		return zerolog.WarnLevel
	case verbose == 0:
		return zerolog.InfoLevel
	case verbose == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

type daemon struct {
	log       zerolog.Logger
	pool      *gateway.ContextPool
	collector *metrics.Collector
	proxies   []*gateway.Proxy
	gateways  map[string]*gateway.Gateway
	order     []*gateway.Gateway
	bridges   []*gateway.Bridge
	server    *http.Server
}

func newDaemon(log zerolog.Logger) *daemon {
	return &daemon{
		log:       log,
		pool:      gateway.NewContextPool(),
		collector: metrics.NewCollector(),
		gateways:  make(map[string]*gateway.Gateway),
	}
}

// start brings everything up in dependency order: proxies first, so that
// gateways connecting through them find the address bound.
func (d *daemon) start(fc *gateway.FileConfig) error {
	reg := gateway.NewRegistry()
	for _, ps := range fc.Proxies {
		cfg, err := reg.ProxyConfig(ps, d.log)
		if err != nil {
			return fmt.Errorf("proxy %s: %w", ps.Name, err)
		}
		cfg.Collector = d.collector
		p, err := gateway.NewProxy(d.pool, cfg)
		if err != nil {
			return fmt.Errorf("proxy %s: %w", ps.Name, err)
		}
		if err = p.Start(); err != nil {
			return fmt.Errorf("proxy %s: %w", ps.Name, err)
		}
		d.proxies = append(d.proxies, p)
	}
	for _, gs := range fc.Gateways {
		cfg, err := reg.Config(gs, d.log)
		if err != nil {
			return fmt.Errorf("gateway %s: %w", gs.Name, err)
		}
		cfg.Collector = d.collector
		g, err := gateway.New(d.pool, cfg)
		if err != nil {
			return fmt.Errorf("gateway %s: %w", gs.Name, err)
		}
		if err = g.Open(); err != nil {
			return fmt.Errorf("gateway %s: %w", gs.Name, err)
		}
		d.gateways[gs.Name] = g
		d.order = append(d.order, g)
	}
	for _, bs := range fc.Bridges {
		b, err := gateway.NewBridge(bs.Name, d.gateways[bs.From], d.gateways[bs.To], &d.log)
		if err != nil {
			return fmt.Errorf("bridge %s: %w", bs.Name, err)
		}
		b.Start()
		d.bridges = append(d.bridges, b)
	}
	return nil
}

func (d *daemon) serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		d.collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	if verbose > 0 {
		h = requestlog.Wrap(h)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	d.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		err := d.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error().Err(err).Str("address", addr).Msg("metrics server failed")
		}
	}()
	d.log.Info().Str("address", addr).Msg("serving metrics")
}

// stop takes everything down in the reverse of start.
func (d *daemon) stop() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(ctx); err != nil {
			d.log.Error().Err(err).Msg("stopping metrics server")
		}
		cancel()
	}
	for _, b := range d.bridges {
		if err := b.Close(); err != nil {
			d.log.Warn().Err(err).Msg("closing bridge")
		}
	}
	for i := len(d.order) - 1; i >= 0; i-- {
		d.order[i].Close()
	}
	for _, p := range d.proxies {
		p.Close()
	}
}

func main() {
	goopt.Parse(nil)
	if configPath == "" {
		fatalf("No configuration file given.")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(logLevel())
	fc, err := gateway.LoadFileConfig(configPath)
	if err != nil {
		fatalf("Loading %s: %v", configPath, err)
	}

	d := newDaemon(log)
	if err = d.start(fc); err != nil {
		d.stop()
		fatalf("Starting: %v", err)
	}
	if metricsAddr != "" {
		d.serveMetrics(metricsAddr)
	}
	log.Info().
		Int("proxies", len(d.proxies)).
		Int("gateways", len(d.order)).
		Int("bridges", len(d.bridges)).
		Msg("gatewayd running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Stringer("signal", sig).Msg("shutting down")
	d.stop()
}
