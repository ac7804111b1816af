/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/facebook/pvtd/pvt"
)

// ProtocolVersion is reported by the 'L' verb.
const ProtocolVersion = "1.0"

// SupportedVerbs is the verb list the 'L' verb advertises.
const SupportedVerbs = "ABCDEFGIJKLMNOPQRSTUVWXYZ$|"

// verb is one parsed request token: a letter, optionally followed by
// "=value".
type verb struct {
	Letter byte
	Value  string
	HasVal bool
}

// parseLine splits a request line into its verb tokens. Unknown verbs are
// not filtered here; HandleLine silently skips anything it doesn't
// recognize.
func parseLine(line string) []verb {
	line = strings.TrimRight(line, "\r\n")
	var verbs []verb
	i := 0
	for i < len(line) {
		c := line[i]
		i++
		if c == ',' || c == ' ' {
			continue
		}
		v := verb{Letter: upperByte(c)}
		if i < len(line) && line[i] == '=' {
			j := i + 1
			for j < len(line) && line[j] != ',' {
				j++
			}
			v.Value = line[i+1 : j]
			v.HasVal = true
			i = j
		}
		verbs = append(verbs, v)
	}
	return verbs
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// missing is the phrase gpsd-style clients expect for a field with no
// available value.
const missing = "?"

// HandleLine parses and executes one client request line, returning the
// single response line to write back (always prefixed "GPSD").
func (e *Engine) HandleLine(sub *Subscriber, line string) string {
	sub.Touch()
	verbs := parseLine(line)

	var phrases []string
	for _, v := range verbs {
		phrase, ok := e.handleVerb(sub, v)
		if ok {
			phrases = append(phrases, phrase)
		}
	}
	return "GPSD," + strings.Join(phrases, ",")
}

func (e *Engine) handleVerb(sub *Subscriber, v verb) (string, bool) {
	// Every data-requiring verb other than L/K/W/Z/G needs a device first.
	switch v.Letter {
	case 'L', 'K', 'W', 'Z', 'G':
		// handled below without requiring prior assignment
	default:
		if sub.DeviceID == "" {
			e.AssignDevice(sub, sub.Kind)
		}
	}

	d, hasDevice := e.Device(sub.DeviceID)

	switch v.Letter {
	case 'A':
		if !hasDevice || d.Fix.Mode != pvt.Mode3D {
			return "A=?", true
		}
		return fmt.Sprintf("A=%s", valueOr(d.Fix.Altitude)), true

	case 'B':
		if v.HasVal {
			if !e.IsSolo(sub, sub.DeviceID) {
				return "B=ERROR", true
			}
			return fmt.Sprintf("B=%s", v.Value), true
		}
		if !hasDevice {
			return "B=?", true
		}
		return fmt.Sprintf("B=%d %d %d", d.Baud, d.Parity, d.StopBits), true

	case 'C':
		if v.HasVal && !e.IsSolo(sub, sub.DeviceID) {
			return "C=ERROR", true
		}
		return fmt.Sprintf("C=%s", orMissing(v.HasVal, v.Value)), true

	case 'D':
		if !hasDevice {
			return "D=?", true
		}
		t, ok := d.Fix.Time.Get()
		if !ok {
			return "D=?", true
		}
		return fmt.Sprintf("D=%s", time.Unix(int64(t), 0).UTC().Format(time.RFC3339)), true

	case 'E':
		if !hasDevice {
			return "E=?", true
		}
		return fmt.Sprintf("E=%s %s %s", valueOr(d.Fix.EPT), valueOr(d.Fix.EPH), valueOr(d.Fix.EPV)), true

	case 'F':
		if v.HasVal {
			if _, ok := e.Device(v.Value); ok {
				sub.DeviceID = v.Value
			}
		}
		return fmt.Sprintf("F=%s", orMissing(sub.DeviceID != "", sub.DeviceID)), true

	case 'G':
		if v.HasVal {
			switch v.Value {
			case "gps":
				sub.Kind = KindGPS
			case "rtcm104":
				sub.Kind = KindRTCM104
			default:
				sub.Kind = KindAny
			}
		}
		return fmt.Sprintf("G=%s", kindName(sub.Kind)), true

	case 'I':
		if !hasDevice {
			return "I=?", true
		}
		return fmt.Sprintf("I=%s", d.DriverName), true

	case 'J':
		if v.HasVal {
			if !e.IsSolo(sub, sub.DeviceID) {
				return "J=ERROR", true
			}
			if v.Value == "1" {
				sub.Buffering = Independent
			} else {
				sub.Buffering = CycleAssociate
			}
		}
		return fmt.Sprintf("J=%d", sub.Buffering), true

	case 'K':
		devs := e.Devices()
		names := make([]string, len(devs))
		for i, d := range devs {
			names[i] = d.Path
		}
		return fmt.Sprintf("K=%d %s", len(names), strings.Join(names, " ")), true

	case 'L':
		return fmt.Sprintf("L=%s %s", ProtocolVersion, SupportedVerbs), true

	case 'M':
		if !hasDevice {
			return "M=?", true
		}
		return fmt.Sprintf("M=%d", d.Fix.Mode), true

	case 'N':
		if v.HasVal && !e.IsSolo(sub, sub.DeviceID) {
			return "N=ERROR", true
		}
		return fmt.Sprintf("N=%s", orMissing(v.HasVal, v.Value)), true

	case 'O':
		return e.buildObservationLine(d, hasDevice), true

	case 'P':
		if !hasDevice {
			return "P=?", true
		}
		return fmt.Sprintf("P=%s %s", valueOr(d.Fix.Latitude), valueOr(d.Fix.Longitude)), true

	case 'Q':
		if !hasDevice {
			return "Q=?", true
		}
		return fmt.Sprintf("Q=%s %s %s", valueOr(d.DOP.PDOP), valueOr(d.DOP.HDOP), valueOr(d.DOP.VDOP)), true

	case 'S':
		if !hasDevice {
			return "S=?", true
		}
		return fmt.Sprintf("S=%d", d.Status), true

	case 'T':
		if !hasDevice {
			return "T=?", true
		}
		return fmt.Sprintf("T=%s", valueOr(d.Fix.Track)), true

	case 'U':
		if !hasDevice {
			return "U=?", true
		}
		return fmt.Sprintf("U=%s", valueOr(d.Fix.Climb)), true

	case 'V':
		if !hasDevice {
			return "V=?", true
		}
		mps, ok := d.Fix.Speed.Get()
		if !ok {
			return "V=?", true
		}
		return fmt.Sprintf("V=%.3f", mps/0.514444), true

	case 'R':
		if v.HasVal {
			n, _ := strconv.Atoi(v.Value)
			sub.Raw = RawLevel(n)
		}
		return fmt.Sprintf("R=%d", sub.Raw), true

	case 'W':
		if v.HasVal {
			sub.Watcher = v.Value == "1"
		}
		return fmt.Sprintf("W=%d", boolToInt(sub.Watcher)), true

	case 'X':
		return fmt.Sprintf("X=%.3f", time.Since(sub.Created).Seconds()), true

	case 'Y':
		if !hasDevice {
			return "Y=?", true
		}
		return fmt.Sprintf("Y=%d", d.SatsVisible), true

	case 'Z':
		if v.HasVal {
			sub.Profiling = v.Value == "1"
		}
		return fmt.Sprintf("Z=%d", boolToInt(sub.Profiling)), true

	case '$':
		if !hasDevice {
			return "$=?", true
		}
		return e.buildProfilingLine(d), true

	case '|':
		// A no-op acknowledgement: nothing is forwarded to the device, and
		// neither the daemon nor this handler gates the verb on any
		// dangerous-mode flag.
		return "|=OK", true

	default:
		return "", false
	}
}

func (e *Engine) buildObservationLine(d *pvt.DeviceSnapshot, hasDevice bool) string {
	if !hasDevice {
		return "O=?"
	}
	f := d.Fix
	return fmt.Sprintf("O=%s %s %s %s %s %s %s %s %s %s %s %s %s %d",
		orMissing(d.LastSentence != "", d.LastSentence),
		valueOr(f.Time), valueOr(f.EPT),
		valueOr(f.Latitude), valueOr(f.Longitude), valueOr(f.Altitude),
		valueOr(f.EPH), valueOr(f.EPV),
		valueOr(f.Track), valueOr(f.Speed), valueOr(f.Climb),
		valueOr(f.EPD), valueOr(f.EPS), int(f.Mode))
}

func (e *Engine) buildProfilingLine(d *pvt.DeviceSnapshot) string {
	now := time.Now()
	p := d.Profiling
	return fmt.Sprintf("$=%.3f %.3f %.3f %.3f",
		p.Transmit.Sub(p.SentenceTime).Seconds(),
		p.Receive.Sub(p.Transmit).Seconds(),
		p.Decode.Sub(p.Receive).Seconds(),
		now.Sub(p.Poll).Seconds())
}

func valueOr(v pvt.Value) string {
	f, ok := v.Get()
	if !ok {
		return missing
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orMissing(ok bool, s string) string {
	if !ok {
		return missing
	}
	return s
}

func kindName(k KindFilter) string {
	switch k {
	case KindGPS:
		return "gps"
	case KindRTCM104:
		return "rtcm104"
	default:
		return "any"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BuildWatcherPush builds an unsolicited 'o'/'y' push line for a watcher
// subscriber when the change-set carries fields it cares about. Returns
// false if nothing relevant changed.
func BuildWatcherPush(sub *Subscriber, d *pvt.DeviceSnapshot, changes pvt.ChangeSet) (string, bool) {
	if changes.Any(pvt.ChangeLatLon | pvt.ChangeAltitude | pvt.ChangeSpeed | pvt.ChangeTrack | pvt.ChangeMode) {
		f := d.Fix
		return fmt.Sprintf("o=%s %s %s %s %s %d",
			orMissing(d.LastSentence != "", d.LastSentence),
			valueOr(f.Time), valueOr(f.Latitude), valueOr(f.Longitude),
			valueOr(f.Altitude), int(f.Mode)), true
	}
	if changes.Has(pvt.ChangeSatellites) {
		return fmt.Sprintf("y=%d", d.SatsVisible), true
	}
	return "", false
}
