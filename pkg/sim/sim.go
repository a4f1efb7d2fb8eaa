// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides simulated sensor drivers for running the board on a
// host without hardware attached.
package sim

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/soar-avionics/sob/pkg/sobproto"
)

// ErrNoSamples is returned when asked to average zero conversions
var ErrNoSamples = errors.New("sample count must be positive")

// HX711 simulates a load cell amplifier: a fixed zero offset plus a linear
// response to the applied mass, with bounded noise.
type HX711 struct {
	mu            sync.Mutex
	offset        int32
	countsPerGram float64
	massGrams     float64
	noise         int32
	rng           *rand.Rand
}

// NewHX711 creates a simulated amplifier
func NewHX711(offset int32, countsPerGram float64, noise int32, seed int64) *HX711 {
	return &HX711{
		offset:        offset,
		countsPerGram: countsPerGram,
		noise:         noise,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// SetMass sets the mass resting on the cell
func (h *HX711) SetMass(grams float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.massGrams = grams
}

// ReadAverage implements sensors.LoadCellADC
func (h *HX711) ReadAverage(samples int) (int32, error) {
	if samples <= 0 {
		return 0, ErrNoSamples
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var sum int64
	for i := 0; i < samples; i++ {
		v := int64(h.offset) + int64(math.Round(h.massGrams*h.countsPerGram))
		if h.noise > 0 {
			v += int64(h.rng.Int31n(2*h.noise+1) - h.noise)
		}
		sum += v
	}
	return int32(sum / int64(samples)), nil
}

// drift is a slow sinusoid around a base temperature
type drift struct {
	start      time.Time
	baseCentiC int32
	ampCentiC  float64
	period     time.Duration
}

func (d drift) at(now time.Time, phase float64) int32 {
	t := now.Sub(d.start).Seconds() / d.period.Seconds()
	return d.baseCentiC + int32(math.Round(d.ampCentiC*math.Sin(2*math.Pi*t+phase)))
}

// Thermocouples simulates the two thermocouple channels
type Thermocouples struct {
	d   drift
	now func() time.Time
}

// NewThermocouples creates simulated thermocouples around baseCentiC
func NewThermocouples(baseCentiC int32) *Thermocouples {
	return &Thermocouples{
		d:   drift{start: time.Now(), baseCentiC: baseCentiC, ampCentiC: 150, period: time.Minute},
		now: time.Now,
	}
}

// ReadTemperatures implements sensors.ThermocoupleReader
func (t *Thermocouples) ReadTemperatures() (sobproto.TemperatureData, error) {
	now := t.now()
	return sobproto.TemperatureData{
		TC1CentiC: t.d.at(now, 0),
		TC2CentiC: t.d.at(now, math.Pi/4),
	}, nil
}

// IR simulates the infrared sensor: a stable ambient and a drifting object
type IR struct {
	ambientCentiC int32
	d             drift
	now           func() time.Time
}

// NewIR creates a simulated IR sensor
func NewIR(ambientCentiC, objectCentiC int32) *IR {
	return &IR{
		ambientCentiC: ambientCentiC,
		d:             drift{start: time.Now(), baseCentiC: objectCentiC, ampCentiC: 300, period: 2 * time.Minute},
		now:           time.Now,
	}
}

// ReadIR implements sensors.IRReader
func (i *IR) ReadIR() (sobproto.IRData, error) {
	return sobproto.IRData{
		AmbientCentiC: i.ambientCentiC,
		ObjectCentiC:  i.d.at(i.now(), 0),
	}, nil
}
