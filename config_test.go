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

package gateway

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"nanomsg.org/go/gateway/codec/stomp"
	"nanomsg.org/go/gateway/filter"
)

func TestConfigValidate(t *testing.T) {
	Convey("Given a valid producer config", t, func() {
		c := Config{Direction: Outgoing, Pattern: PUSH, Addresses: []string{"inproc://a"}}
		So(c.Validate(), ShouldBeNil)

		Convey("Addresses are required", func() {
			c.Addresses = nil
			So(c.Validate(), ShouldEqual, ErrNoAddress)
			c.Addresses = []string{""}
			So(c.Validate(), ShouldEqual, ErrNoAddress)
		})

		Convey("The pattern must be able to send", func() {
			c.Pattern = PULL
			So(errors.Is(c.Validate(), ErrBadDirection), ShouldBeTrue)
		})

		Convey("ROUTER cannot produce", func() {
			c.Pattern = ROUTER
			err := c.Validate()
			So(errors.Is(err, ErrBadDirection), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "originate")
			c.Direction = Incoming
			So(c.Validate(), ShouldBeNil)
			c.Acknowledge = true
			So(c.Validate(), ShouldBeNil)
		})

		Convey("A consumer needs a pattern that receives", func() {
			c.Direction = Incoming
			So(errors.Is(c.Validate(), ErrBadDirection), ShouldBeTrue)
			c.Pattern = SUB
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Acknowledgement needs a reverse path", func() {
			c.Acknowledge = true
			So(errors.Is(c.Validate(), ErrBadConfig), ShouldBeTrue)
			c.Pattern = DEALER
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Unknown patterns and directions are refused", func() {
			c.Pattern = 0
			So(errors.Is(c.Validate(), ErrBadPattern), ShouldBeTrue)
			c.Pattern = PUSH
			c.Direction = 0
			So(c.Validate(), ShouldEqual, ErrBadDirection)
		})

		Convey("Negative intervals are refused", func() {
			c.AckTimeout = -time.Second
			So(errors.Is(c.Validate(), ErrBadConfig), ShouldBeTrue)
		})
	})
}

func TestConfigDefaults(t *testing.T) {
	Convey("Zero fields take their defaults", t, func() {
		c := Config{Direction: Outgoing, Pattern: PUB, Addresses: []string{"inproc://a"}}.withDefaults()
		So(c.Name, ShouldEqual, "inproc://a")
		So(c.HeartbeatInterval, ShouldEqual, DefaultHeartbeatInterval)
		So(c.AutoPauseInterval, ShouldEqual, DefaultAutoPauseInterval)
		So(c.AckTimeout, ShouldEqual, DefaultAckTimeout)
		So(c.SocketWait, ShouldEqual, DefaultSocketWait)
		So(c.CloseTimeout, ShouldEqual, DefaultCloseTimeout)
		So(c.Context, ShouldEqual, DefaultContext)
		So(c.Codec.Name(), ShouldEqual, stomp.Name)
		So(c.Filter, ShouldResemble, filter.None{})
	})

	Convey("Point to point patterns get no filter", t, func() {
		c := Config{Direction: Outgoing, Pattern: PUSH, Addresses: []string{"inproc://a"}}.withDefaults()
		So(c.Filter, ShouldBeNil)
	})
}

func TestKind(t *testing.T) {
	Convey("Kinds set the delivery flags and default pattern", t, func() {
		c := Config{Direction: Incoming}
		PAR.Apply(&c)
		So(c.Acknowledge, ShouldBeTrue)
		So(c.Heartbeat, ShouldBeTrue)
		So(c.Pattern, ShouldEqual, ROUTER)

		c = Config{Direction: Outgoing}
		FireAndForget.Apply(&c)
		So(c.Acknowledge, ShouldBeFalse)
		So(c.Pattern, ShouldEqual, PUSH)

		Convey("But keep an explicit pattern", func() {
			c := Config{Direction: Outgoing, Pattern: PAIR}
			PAR.Apply(&c)
			So(c.Pattern, ShouldEqual, PAIR)
		})
	})
}

func TestProxyConfig(t *testing.T) {
	Convey("Proxies relay between matching patterns only", t, func() {
		c := ProxyConfig{
			Front: Endpoint{Address: "inproc://f", Pattern: PULL, Bind: true},
			Back:  Endpoint{Address: "inproc://b", Pattern: PUSH, Bind: true},
		}
		So(c.Validate(), ShouldBeNil)
		for _, pair := range [][2]Pattern{{SUB, PUB}, {ROUTER, DEALER}, {DEALER, ROUTER}, {PAIR, PAIR}} {
			c.Front.Pattern, c.Back.Pattern = pair[0], pair[1]
			So(c.Validate(), ShouldBeNil)
		}
		c.Front.Pattern, c.Back.Pattern = PUSH, PULL
		So(errors.Is(c.Validate(), ErrBadPattern), ShouldBeTrue)

		c.Front.Pattern, c.Back.Pattern = PULL, PUSH
		c.Back.Address = ""
		So(c.Validate(), ShouldEqual, ErrNoAddress)
	})

	Convey("The retry ceiling defaults to the retry interval", t, func() {
		c := ProxyConfig{RetryInterval: 50 * time.Millisecond}.withDefaults()
		So(c.MaxRetryInterval, ShouldEqual, 50*time.Millisecond)
		So(c.Wait, ShouldEqual, DefaultSocketWait)
	})
}
