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

// jmscat sends and receives messages through a gateway from the command
// line, in the manner of nanocat(1).
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/droundy/goopt"
	"github.com/rs/zerolog"

	"nanomsg.org/go/gateway"
	"nanomsg.org/go/gateway/filter"
	"nanomsg.org/go/gateway/message"
)

var verbose int
var pattern gateway.Pattern
var dialAddrs []string
var listenAddrs []string
var subscriptions []string
var filterProperty string
var par bool
var transacted bool
var recvTimeout int
var sendInterval int
var sendDelay int
var sendData []byte
var printFormat string

func setPattern(p gateway.Pattern) error {
	if pattern != 0 {
		return errors.New("pattern already selected")
	}
	pattern = p
	return nil
}

func addDial(addr string) error {
	if !strings.Contains(addr, "://") {
		return errors.New("invalid address format")
	}
	dialAddrs = append(dialAddrs, addr)
	return nil
}

func addListen(addr string) error {
	if !strings.Contains(addr, "://") {
		return errors.New("invalid address format")
	}
	listenAddrs = append(listenAddrs, addr)
	return nil
}

func addSub(sub string) error {
	subscriptions = append(subscriptions, sub)
	return nil
}

func setSendData(data string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	sendData = []byte(data)
	return nil
}

func setSendFile(path string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sendData, err = io.ReadAll(f)
	return err
}

func setFormat(f string) error {
	if len(printFormat) > 0 {
		return errors.New("output format already set")
	}
	switch f {
	case "no", "raw", "ascii", "quoted":
	default:
		return errors.New("invalid format type")
	}
	printFormat = f
	return nil
}

func intArg(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("value not an integer")
		}
		*dst = v
		return nil
	}
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func init() {
	goopt.NoArg([]string{"--verbose", "-v"}, "Increase verbosity",
		func() error {
			verbose++
			return nil
		})
	for _, p := range []gateway.Pattern{
		gateway.PUSH, gateway.PULL, gateway.PUB, gateway.SUB,
		gateway.DEALER, gateway.ROUTER, gateway.PAIR,
	} {
		p := p
		name := strings.ToLower(p.String())
		goopt.NoArg([]string{"--" + name}, "Use "+p.String()+" socket type",
			func() error { return setPattern(p) })
	}
	goopt.ReqArg([]string{"--bind"}, "ADDR", "Bind socket to ADDR", addListen)
	goopt.ReqArg([]string{"--connect"}, "ADDR", "Connect socket to ADDR", addDial)
	goopt.ReqArg([]string{"--subscribe"}, "VALUE",
		"Receive only messages whose filter property is VALUE", addSub)
	goopt.ReqArg([]string{"--filter-property"}, "NAME",
		"Key published messages by property NAME", func(s string) error {
			filterProperty = s
			return nil
		})
	goopt.NoArg([]string{"--par"}, "Acknowledge and heartbeat (DEALER/ROUTER)",
		func() error {
			par = true
			return nil
		})
	goopt.NoArg([]string{"--transacted", "-t"}, "Commit after every message",
		func() error {
			transacted = true
			return nil
		})
	goopt.ReqArg([]string{"--recv-timeout"}, "SEC", "Stop after SEC idle seconds",
		intArg(&recvTimeout))
	goopt.ReqArg([]string{"--send-delay", "-d"}, "SEC", "Set initial send delay",
		intArg(&sendDelay))
	goopt.ReqArg([]string{"--interval", "-i"}, "SEC", "Send DATA every SEC seconds",
		intArg(&sendInterval))
	goopt.NoArg([]string{"--raw"}, "Raw output, no delimiters",
		func() error { return setFormat("raw") })
	goopt.NoArg([]string{"--ascii", "-A"}, "ASCII output, one per line",
		func() error { return setFormat("ascii") })
	goopt.NoArg([]string{"--quoted", "-Q"}, "Quoted output, one per line",
		func() error { return setFormat("quoted") })
	goopt.ReqArg([]string{"--data", "-D"}, "DATA", "Data to send", setSendData)
	goopt.ReqArg([]string{"--file", "-F"}, "FILE", "Send contents of FILE", setSendFile)

	goopt.Description = func() string {
		return `jmscat sends and receives messages through a messaging
gateway, using the same framing, acknowledgement and filtering as
gatewayd.`
	}
	goopt.Suite = "gateway"
	goopt.Summary = "command line interface to messaging gateways"
}

func formatMsg(w *bufio.Writer, m *message.Message) {
	switch printFormat {
	case "no":
		return
	case "raw":
		w.Write(m.Body)
	case "quoted":
		w.WriteString(strconv.Quote(string(m.Body)))
		w.WriteByte('\n')
	default:
		for _, c := range m.Body {
			if strconv.IsPrint(rune(c)) {
				w.WriteByte(c)
			} else {
				w.WriteByte('.')
			}
		}
		w.WriteByte('\n')
	}
}

// buildConfig turns the flags into a gateway configuration.
func buildConfig(log *zerolog.Logger) (gateway.Config, error) {
	if pattern == 0 {
		return gateway.Config{}, errors.New("pattern not specified")
	}
	if len(listenAddrs) > 0 && len(dialAddrs) > 0 {
		return gateway.Config{}, errors.New("cannot both bind and connect")
	}
	c := gateway.Config{
		Pattern:    pattern,
		Addresses:  append(listenAddrs, dialAddrs...),
		Bind:       len(listenAddrs) > 0,
		Transacted: transacted,
		Logger:     log,
	}
	if pattern == gateway.ROUTER && sendData != nil {
		return gateway.Config{}, errors.New("ROUTER only replies, it cannot send data")
	}
	if pattern.CanSend() && (sendData != nil || !pattern.CanReceive()) {
		c.Direction = gateway.Outgoing
	} else {
		c.Direction = gateway.Incoming
	}
	if par {
		gateway.PAR.Apply(&c)
	}
	if filterProperty != "" || len(subscriptions) > 0 {
		if !pattern.Broadcast() {
			return gateway.Config{}, errors.New("filters only apply to PUB and SUB")
		}
		if filterProperty == "" {
			return gateway.Config{}, errors.New("--subscribe needs --filter-property")
		}
		c.Filter = filter.NewProperty(filterProperty, subscriptions...)
	}
	return c, c.Validate()
}

func sendLoop(g *gateway.Gateway) error {
	for {
		if err := g.Send(message.NewBytes(sendData)); err != nil {
			return err
		}
		if transacted {
			if err := g.Commit(); err != nil {
				return err
			}
		}
		if sendInterval <= 0 {
			return nil
		}
		time.Sleep(time.Duration(sendInterval) * time.Second)
	}
}

func recvLoop(g *gateway.Gateway) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for {
		var m *message.Message
		var err error
		if recvTimeout > 0 {
			m, err = g.RecvTimeout(time.Duration(recvTimeout) * time.Second)
		} else {
			m, err = g.Recv()
		}
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		formatMsg(w, m)
		w.Flush()
		if transacted {
			if err = g.Commit(); err != nil {
				return err
			}
		}
	}
}

func main() {
	goopt.Parse(nil)

	level := zerolog.WarnLevel
	if verbose > 0 {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	cfg, err := buildConfig(&log)
	if err != nil {
		fatalf("%v", err)
	}
	g, err := gateway.New(nil, cfg)
	if err != nil {
		fatalf("Creating gateway: %v", err)
	}
	if err = g.Open(); err != nil {
		fatalf("Opening gateway: %v", err)
	}
	defer g.Close()

	time.Sleep(time.Second * time.Duration(sendDelay))
	if cfg.Direction == gateway.Outgoing {
		if sendData == nil {
			fatalf("No data to send!")
		}
		err = sendLoop(g)
		// give the sessions a chance to drain the queue
		end := time.Now().Add(gateway.DefaultCloseTimeout)
		for (g.Pending() > 0 || g.Tracked() > 0) && time.Now().Before(end) {
			time.Sleep(gateway.DefaultSocketWait)
		}
	} else {
		err = recvLoop(g)
	}
	if err != nil {
		fatalf("%v", err)
	}
}
