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

package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nanomsg.org/go/gateway"
	"nanomsg.org/go/gateway/message"
	"nanomsg.org/go/gateway/metrics"
)

// LatencyServer measures how long messages take from Send to delivery,
// using the timestamp every message carries.  Both ends must share a
// clock.
func LatencyServer(pa perfArgs) {
	g := openGateway(pa, gateway.Incoming, true)
	defer g.Close()

	var total, worst time.Duration
	for i := 0; i != pa.count; i++ {
		m, err := g.Recv()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to recv")
		}
		d := time.Since(m.Timestamp)
		total += d
		if d > worst {
			worst = d
		}
	}
	fmt.Printf("kind: %s\n", pa.kind.Name)
	fmt.Printf("message size: %d [B]\n", pa.size)
	fmt.Printf("message count: %d\n", pa.count)
	fmt.Printf("average latency: %.3f [us]\n", float64(total/time.Microsecond)/float64(pa.count))
	fmt.Printf("worst latency: %.3f [us]\n", float64(worst/time.Microsecond))
	for _, s := range g.Metrics() {
		fmt.Println(s)
	}
}

// LatencyClient sends messages one at a time, each once the previous one
// has left the gateway.
func LatencyClient(pa perfArgs) {
	g := openGateway(pa, gateway.Outgoing, false)
	defer g.Close()

	body := make([]byte, pa.size)
	for i := 0; i < pa.count; i++ {
		if err := g.Send(message.NewBytes(body)); err != nil {
			log.Fatal().Err(err).Msg("Failed to send")
		}
		for g.Pending() > 0 {
			time.Sleep(time.Microsecond * 50)
		}
	}
	for g.Tracked() > 0 {
		time.Sleep(gateway.DefaultSocketWait)
	}
	var sent metrics.Snapshot
	if ms := g.Metrics(); len(ms) > 0 {
		sent = ms[0]
	}
	fmt.Println(sent)
}
