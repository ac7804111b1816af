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

package pvt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorModelDerivesEPHFromHDOPAndUERE(t *testing.T) {
	m := &ErrorModel{}
	cur := Fix{}
	dop := DOP{HDOP: Some(1.5), VDOP: Some(2.0)}

	m.Apply(&cur, Fix{}, dop, StatusFix, 0)

	eph, ok := cur.EPH.Get()
	require.True(t, ok)
	require.InDelta(t, 1.5*DefaultUERE[StatusFix], eph, 1e-9)

	epv, ok := cur.EPV.Get()
	require.True(t, ok)
	require.InDelta(t, 2.0*DefaultUERE[StatusFix], epv, 1e-9)
}

func TestErrorModelDoesNotOverwriteDriverSuppliedEPH(t *testing.T) {
	m := &ErrorModel{}
	cur := Fix{EPH: Some(42)}
	dop := DOP{HDOP: Some(1.5)}

	m.Apply(&cur, Fix{}, dop, StatusFix, 0)

	eph, _ := cur.EPH.Get()
	require.Equal(t, 42.0, eph)
}

func TestErrorModelDerivesEPSFromPositionDelta(t *testing.T) {
	m := &ErrorModel{}
	cur := Fix{Latitude: Some(1.0), Longitude: Some(1.0)}
	prev := Fix{Latitude: Some(1.0), Longitude: Some(1.0)}

	m.Apply(&cur, prev, DOP{}, StatusFix, 1.0)

	eps, ok := cur.EPS.Get()
	require.True(t, ok)
	require.InDelta(t, 0.0, eps, 1e-9)
}

func TestUEREFormulaOverridesDefault(t *testing.T) {
	f := &UEREFormula{Expr: "10.0 - (status * 4.5)"}
	require.NoError(t, f.Prepare())

	v, err := f.Evaluate(StatusDGPSFix)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-9)

	v, err = f.Evaluate(StatusFix)
	require.NoError(t, err)
	require.InDelta(t, 5.5, v, 1e-9)
}

func TestUEREFormulaRejectsUnsupportedVariable(t *testing.T) {
	f := &UEREFormula{Expr: "hdop * 5"}
	require.Error(t, f.Prepare())
}
