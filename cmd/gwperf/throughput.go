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

	"github.com/jpillora/sizestr"
	"github.com/rs/zerolog/log"

	"nanomsg.org/go/gateway"
	"nanomsg.org/go/gateway/message"
)

// ThroughputServer counts messages received through a consuming gateway,
// like local_thr.  An empty message starts the clock.
func ThroughputServer(pa perfArgs) {
	g := openGateway(pa, gateway.Incoming, true)
	defer g.Close()

	if _, err := g.Recv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to receive start message")
	}
	start := time.Now()
	for i := 0; i != pa.count; i++ {
		m, err := g.Recv()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to recv")
		}
		if len(m.Body) != pa.size {
			log.Fatal().Msgf("Received wrong message size: %d != %d", len(m.Body), pa.size)
		}
	}
	delta := time.Since(start)
	report(pa, delta)
}

func report(pa perfArgs, delta time.Duration) {
	deltasec := delta.Seconds()
	msgpersec := float64(pa.count) / deltasec
	mbps := (float64(pa.count*8*pa.size) / deltasec) / 1000000.0
	fmt.Printf("kind: %s\n", pa.kind.Name)
	fmt.Printf("message size: %s\n", sizestr.ToString(int64(pa.size)))
	fmt.Printf("message count: %d\n", pa.count)
	fmt.Printf("throughput: %d [msg/s]\n", uint64(msgpersec))
	fmt.Printf("throughput: %.3f [Mb/s]\n", mbps)
}

// ThroughputClient sends the requested number of messages through a
// producing gateway, like remote_thr, then waits for them to drain.
func ThroughputClient(pa perfArgs) {
	g := openGateway(pa, gateway.Outgoing, false)
	defer g.Close()

	body := make([]byte, pa.size)
	for i := range body {
		body[i] = 111
	}
	if err := g.Send(message.NewBytes(nil)); err != nil {
		log.Fatal().Err(err).Msg("Failed to send start message")
	}
	for i := 0; i < pa.count; i++ {
		if err := g.Send(message.NewBytes(body)); err != nil {
			log.Fatal().Err(err).Msg("Failed to send")
		}
	}
	for g.Pending() > 0 || g.Tracked() > 0 {
		time.Sleep(gateway.DefaultSocketWait)
	}
}
