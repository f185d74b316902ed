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

// gwperf measures gateway throughput and delivery latency, in the manner
// of the nanomsg perf tools.  The measurement is chosen by the name the
// program runs under, or by its first argument.
package main

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nanomsg.org/go/gateway"
)

func usage() {
	fmt.Printf("Usage: gwperf local_thr|remote_thr|local_lat|remote_lat <addr> <msg-size> <count> [par]\n")
	fmt.Printf("       gwperf inproc_thr|inproc_lat <msg-size> <count> [par]\n")
	os.Exit(1)
}

// perfArgs are the parsed arguments shared by every measurement.
type perfArgs struct {
	addr  string
	size  int
	count int
	kind  gateway.Kind
}

func parseArgs(name string, args []string, withAddr bool) perfArgs {
	var pa perfArgs
	if withAddr {
		if len(args) < 1 {
			log.Fatal().Msgf("Usage: %s <addr> <msg-size> <count> [par]", name)
		}
		pa.addr, args = args[0], args[1:]
	}
	if len(args) < 2 {
		log.Fatal().Msgf("Usage: %s <msg-size> <count> [par]", name)
	}
	var err error
	if pa.size, err = strconv.Atoi(args[0]); err != nil {
		log.Fatal().Err(err).Msg("Bad msg-size")
	}
	if pa.count, err = strconv.Atoi(args[1]); err != nil {
		log.Fatal().Err(err).Msg("Bad count")
	}
	pa.kind = gateway.FireAndForget
	if len(args) > 2 && args[2] == gateway.PAR.Name {
		pa.kind = gateway.PAR
	}
	return pa
}

func openGateway(pa perfArgs, dir gateway.Direction, bind bool) *gateway.Gateway {
	quiet := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	c := gateway.Config{
		Direction:  dir,
		Addresses:  []string{pa.addr},
		Bind:       bind,
		SocketWait: time.Millisecond,
		Logger:     &quiet,
	}
	pa.kind.Apply(&c)
	g, err := gateway.New(nil, c)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to make gateway")
	}
	if err = g.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open gateway")
	}
	return g
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	args := os.Args

	for tries := 0; tries < 2; tries++ {
		name := path.Base(args[0])
		switch name {
		case "remote_thr":
			ThroughputClient(parseArgs(name, args[1:], true))
		case "local_thr":
			ThroughputServer(parseArgs(name, args[1:], true))
		case "remote_lat":
			LatencyClient(parseArgs(name, args[1:], true))
		case "local_lat":
			LatencyServer(parseArgs(name, args[1:], true))
		case "inproc_thr":
			pa := parseArgs(name, args[1:], false)
			pa.addr = "inproc://inproc_thr"
			go ThroughputClient(pa)
			ThroughputServer(pa)
		case "inproc_lat":
			pa := parseArgs(name, args[1:], false)
			pa.addr = "inproc://inproc_lat"
			go LatencyClient(pa)
			LatencyServer(pa)
		default:
			args = args[1:]
			if len(args) == 0 {
				usage()
			}
			continue
		}
		os.Exit(0)
	}
	usage()
}
