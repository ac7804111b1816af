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
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// DefaultUERE is the default user-equivalent-range-error table, in meters, keyed by
// fix status. A driver with a documented better figure for its own hardware
// should pass its own constant instead of looking this table up.
var DefaultUERE = map[Status]float64{
	StatusNoFix:   0,
	StatusFix:     8.0,
	StatusDGPSFix: 2.0,
}

// UEREFormula lets an operator override the default status->UERE lookup with
// a govaluate expression over "status" (0=no-fix,1=fix,2=dgps-fix), so a
// deployment with measured hardware figures doesn't need a rebuild to adopt
// them. A nil *UEREFormula falls back to DefaultUERE.
type UEREFormula struct {
	Expr string

	compiled *govaluate.EvaluableExpression
}

// Prepare compiles the formula. Call once after loading configuration.
func (f *UEREFormula) Prepare() error {
	if f == nil || f.Expr == "" {
		return nil
	}
	expr, err := govaluate.NewEvaluableExpression(f.Expr)
	if err != nil {
		return fmt.Errorf("compiling UERE formula %q: %w", f.Expr, err)
	}
	for _, v := range expr.Vars() {
		if v != "status" {
			return fmt.Errorf("UERE formula references unsupported variable %q", v)
		}
	}
	f.compiled = expr
	return nil
}

// Evaluate returns the UERE, in meters, for the given status.
func (f *UEREFormula) Evaluate(status Status) (float64, error) {
	if f == nil || f.compiled == nil {
		return DefaultUERE[status], nil
	}
	result, err := f.compiled.Evaluate(map[string]interface{}{"status": float64(status)})
	if err != nil {
		return 0, err
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("UERE formula did not evaluate to a number")
	}
	return v, nil
}

// ErrorModel derives the per-fix uncertainty fields that a driver left
// missing, using DOPs and the UERE for the device's current status. It never
// overwrites a value the driver already supplied.
type ErrorModel struct {
	UERE *UEREFormula
}

// Apply fills EPH/EPV from HDOP/VDOP*UERE when missing, and EPS from the
// position delta between cur and prev when the driver didn't supply one.
// elapsed is the time between cur and prev, in seconds.
func (m *ErrorModel) Apply(cur *Fix, prev Fix, dop DOP, status Status, elapsed float64) {
	uere := DefaultUERE[status]
	if m != nil && m.UERE != nil {
		if v, err := m.UERE.Evaluate(status); err == nil {
			uere = v
		}
	}

	if !cur.EPH.Present {
		if hdop, ok := dop.HDOP.Get(); ok {
			cur.EPH = Some(hdop * uere)
		}
	}
	if !cur.EPV.Present {
		if vdop, ok := dop.VDOP.Get(); ok {
			cur.EPV = Some(vdop * uere)
		}
	}

	if !cur.EPS.Present && elapsed > 0 {
		curLat, curOK := cur.Latitude.Get()
		curLon, curLonOK := cur.Longitude.Get()
		prevLat, prevOK := prev.Latitude.Get()
		prevLon, prevLonOK := prev.Longitude.Get()
		if curOK && curLonOK && prevOK && prevLonOK {
			dlat := metersPerDegreeLat * (curLat - prevLat)
			dlon := metersPerDegreeLon(curLat) * (curLon - prevLon)
			dist := math.Hypot(dlat, dlon)
			cur.EPS = Some(dist / elapsed)
		}
	}
	// Remaining uncertainties (EPT, EPD, EPC) are left as the driver set them:
	// no defensible estimate exists without more receiver-specific data.
}

const metersPerDegreeLat = 111320.0

func metersPerDegreeLon(latDeg float64) float64 {
	return metersPerDegreeLat * math.Cos(latDeg*math.Pi/180)
}
