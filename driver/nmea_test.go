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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/pvtd/pvt"
)

func TestDecodeGGAExtractsPositionAltitudeAndFixQuality(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	require.True(t, res.Changes.Has(pvt.ChangeLatLon))
	require.True(t, res.Changes.Has(pvt.ChangeAltitude))
	require.Equal(t, pvt.StatusFix, res.Status)

	lat, _ := res.Fix.Latitude.Get()
	require.InDelta(t, 48.1173, lat, 1e-4)
	lon, _ := res.Fix.Longitude.Get()
	require.InDelta(t, 11.516667, lon, 1e-4)
	alt, _ := res.Fix.Altitude.Get()
	require.InDelta(t, 545.4, alt, 1e-9)
}

func TestDecodeGGASouthWestHemisphereIsNegative(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPGGA,123519,4807.038,S,01131.000,W,1,08,0.9,545.4,M,46.9,M,,*47\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	lat, _ := res.Fix.Latitude.Get()
	require.Less(t, lat, 0.0)
	lon, _ := res.Fix.Longitude.Get()
	require.Less(t, lon, 0.0)
}

func TestDecodeRMCConvertsKnotsToMetersPerSecondAndFixesTwoDigitYear(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	require.Equal(t, pvt.StatusFix, res.Status)
	speed, _ := res.Fix.Speed.Get()
	require.InDelta(t, 022.4*0.514444, speed, 1e-6)

	ts, ok := res.Fix.Time.Get()
	require.True(t, ok)
	tm := time.Unix(int64(ts), 0).UTC()
	require.Equal(t, 2094, tm.Year()) // two-digit years are read as 20yy
	require.Equal(t, time.March, tm.Month())
	require.Equal(t, 23, tm.Day())
}

func TestDecodeRMCVoidStatusIsNoFix(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPRMC,123519,V,,,,,,,230394,,*53\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	require.Equal(t, pvt.StatusNoFix, res.Status)
}

func TestDecodeGSAReportsModeAndDOPs(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	require.Equal(t, pvt.Mode3D, res.Fix.Mode)
	pdop, _ := res.DOP.PDOP.Get()
	require.InDelta(t, 2.5, pdop, 1e-9)
}

func TestDecodeGSVReturnsSentenceSatellites(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74\r\n")

	res, err := d.Decode(sentence, time.Now())

	require.NoError(t, err)
	require.Len(t, res.Satellites, 4)
	require.Equal(t, 3, res.Satellites[0].PRN)
}

func TestDecodeUnsupportedSentenceReturnsErrUnsupported(t *testing.T) {
	d := NMEA0183{}
	sentence := []byte("$GPZDA,123519,07,07,2026,00,00*63\r\n")

	_, err := d.Decode(sentence, time.Now())

	require.Error(t, err)
	var unsupported *ErrUnsupported
	require.ErrorAs(t, err, &unsupported)
}
