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

package driver

import (
	"strconv"
	"strings"
	"time"

	"github.com/facebook/pvtd/pvt"
)

// NMEA0183 decodes the text sentences gpsd's own nmea.c handles: GGA (fix
// quality + altitude), RMC (date/time + speed/track), GSA (mode + DOPs), and
// GSV (satellite table), accumulated across a reporting cycle the way
// gpsd's merge_mode/merge_dop logic does.
type NMEA0183 struct{}

func (NMEA0183) Name() string { return "NMEA0183" }

func (n NMEA0183) Decode(frame []byte, now time.Time) (Result, error) {
	body := trimSentence(frame)
	fields := strings.Split(body, ",")
	if len(fields) == 0 || len(fields[0]) < 5 {
		return Result{}, &ErrUnsupported{Driver: n.Name(), Kind: body}
	}
	tag := fields[0][2:5]

	switch tag {
	case "GGA":
		return decodeGGA(fields, now)
	case "RMC":
		return decodeRMC(fields, now)
	case "GSA":
		return decodeGSA(fields)
	case "GSV":
		return decodeGSV(fields)
	default:
		return Result{}, &ErrUnsupported{Driver: n.Name(), Kind: tag}
	}
}

// trimSentence strips the leading '$' and the "*HH\r\n" trailer the sniffer
// leaves attached, returning just the comma-delimited body.
func trimSentence(frame []byte) string {
	s := string(frame)
	s = strings.TrimPrefix(s, "$")
	if i := strings.IndexByte(s, '*'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\r\n")
}

func parseFloat(s string) (pvt.Value, bool) {
	if s == "" {
		return pvt.None, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return pvt.None, false
	}
	return pvt.Some(v), true
}

// parseLatLon converts NMEA's ddmm.mmmm / dddmm.mmmm + hemisphere letter
// encoding into signed decimal degrees. The last two digits before the
// decimal point are always minutes, regardless of whether degrees is a
// 2-digit (latitude) or 3-digit (longitude) field, so no field-width
// parameter is needed.
func parseLatLon(value, hemisphere string) (pvt.Value, bool) {
	if value == "" {
		return pvt.None, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return pvt.None, false
	}
	div := pow10(2)
	whole := f / div
	degPart := float64(int(whole))
	minPart := (whole - degPart) * div
	decimal := degPart + minPart/60.0
	if hemisphere == "S" || hemisphere == "W" {
		decimal = -decimal
	}
	return pvt.Some(decimal), true
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// decodeGGA handles $GPGGA/$GNGGA-style fix data sentences: time, position,
// fix quality, satellite count, HDOP, altitude.
func decodeGGA(f []string, now time.Time) (Result, error) {
	if len(f) < 10 {
		return Result{}, &ErrUnsupported{Driver: "NMEA0183", Kind: "GGA-short"}
	}
	var r Result
	r.SentenceTag = "GGA"
	r.SentenceTime = now

	lat, latOK := parseLatLon(f[2], f[3])
	lon, lonOK := parseLatLon(f[4], f[5])
	if latOK && lonOK {
		r.Fix.Latitude = lat
		r.Fix.Longitude = lon
		r.Changes |= pvt.ChangeLatLon
	}

	if alt, ok := parseFloat(f[9]); ok {
		r.Fix.Altitude = alt
		r.Changes |= pvt.ChangeAltitude
	}

	quality, _ := strconv.Atoi(f[6])
	switch quality {
	case 0:
		r.Status = pvt.StatusNoFix
	case 2:
		r.Status = pvt.StatusDGPSFix
	default:
		r.Status = pvt.StatusFix
	}
	r.Changes |= pvt.ChangeStatus

	if hdop, ok := parseFloat(f[8]); ok {
		r.DOP.HDOP = hdop
		r.Changes |= pvt.ChangeDOPs
	}
	return r, nil
}

// decodeRMC handles $GPRMC/$GNRMC: UTC time+date, validity, lat/lon,
// speed-over-ground (knots), track, and the date used to compute Fix.Time.
func decodeRMC(f []string, now time.Time) (Result, error) {
	if len(f) < 10 {
		return Result{}, &ErrUnsupported{Driver: "NMEA0183", Kind: "RMC-short"}
	}
	var r Result
	r.SentenceTag = "RMC"
	r.SentenceTime = now

	if f[2] == "A" {
		r.Status = pvt.StatusFix
	} else {
		r.Status = pvt.StatusNoFix
	}
	r.Changes |= pvt.ChangeStatus

	lat, latOK := parseLatLon(f[3], f[4])
	lon, lonOK := parseLatLon(f[5], f[6])
	if latOK && lonOK {
		r.Fix.Latitude = lat
		r.Fix.Longitude = lon
		r.Changes |= pvt.ChangeLatLon
	}

	if knots, ok := parseFloat(f[7]); ok {
		r.Fix.Speed = pvt.Some(knots.V * 0.514444)
		r.Changes |= pvt.ChangeSpeed
	}
	if track, ok := parseFloat(f[8]); ok {
		r.Fix.Track = track
		r.Changes |= pvt.ChangeTrack
	}

	if t, ok := rmcTime(f[1], f[9]); ok {
		r.Fix.Time = pvt.Some(t)
		r.Changes |= pvt.ChangeTime
	}
	return r, nil
}

// rmcTime combines RMC's hhmmss.ss time field and ddmmyy date field into a
// Unix timestamp, following send_nmea.c's day/month/year packing so a
// two-digit year maps into the 2000s rather than 1900s.
func rmcTime(hhmmss, ddmmyy string) (float64, bool) {
	if len(hhmmss) < 6 || len(ddmmyy) < 6 {
		return 0, false
	}
	hh, err1 := strconv.Atoi(hhmmss[0:2])
	mm, err2 := strconv.Atoi(hhmmss[2:4])
	secWhole, err3 := strconv.ParseFloat(hhmmss[4:], 64)
	dd, err4 := strconv.Atoi(ddmmyy[0:2])
	mon, err5 := strconv.Atoi(ddmmyy[2:4])
	yy, err6 := strconv.Atoi(ddmmyy[4:6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return 0, false
	}
	year := 2000 + yy
	t := time.Date(year, time.Month(mon), dd, hh, mm, int(secWhole), 0, time.UTC)
	return float64(t.Unix()) + (secWhole - float64(int(secWhole))), true
}

// decodeGSA handles $GPGSA/$GNGSA: 2D/3D mode and the PDOP/HDOP/VDOP triple.
func decodeGSA(f []string) (Result, error) {
	if len(f) < 18 {
		return Result{}, &ErrUnsupported{Driver: "NMEA0183", Kind: "GSA-short"}
	}
	var r Result
	r.SentenceTag = "GSA"

	switch f[2] {
	case "2":
		r.Fix.Mode = pvt.Mode2D
	case "3":
		r.Fix.Mode = pvt.Mode3D
	default:
		r.Fix.Mode = pvt.ModeNoFix
	}
	r.Changes |= pvt.ChangeMode

	if pdop, ok := parseFloat(f[15]); ok {
		r.DOP.PDOP = pdop
	}
	if hdop, ok := parseFloat(f[16]); ok {
		r.DOP.HDOP = hdop
	}
	if vdop, ok := parseFloat(f[17]); ok {
		r.DOP.VDOP = vdop
	}
	r.Changes |= pvt.ChangeDOPs
	return r, nil
}

// decodeGSV handles $GPGSV/$GNGSV: one sentence of a multi-sentence
// satellite-in-view table. Each sentence carries up to four satellites;
// callers accumulate sentences across a cycle the way gpsd's nmea.c does,
// but this decoder returns only the satellites in the single sentence given
// it — the session engine merges successive GSV sentences' tables.
func decodeGSV(f []string) (Result, error) {
	if len(f) < 4 {
		return Result{}, &ErrUnsupported{Driver: "NMEA0183", Kind: "GSV-short"}
	}
	var r Result
	r.SentenceTag = "GSV"

	for i := 4; i+3 < len(f); i += 4 {
		prn, err := strconv.Atoi(f[i])
		if err != nil {
			continue
		}
		sat := pvt.Satellite{PRN: prn}
		if el, ok := parseFloat(f[i+1]); ok {
			sat.Elevation = el
		}
		if az, ok := parseFloat(f[i+2]); ok {
			sat.Azimuth = az
		}
		if ss, ok := parseFloat(f[i+3]); ok {
			sat.SS = ss
		}
		r.Satellites = append(r.Satellites, sat)
	}
	r.Changes |= pvt.ChangeSatellites
	return r, nil
}
