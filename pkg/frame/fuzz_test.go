// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzDecoder_RandomBytes feeds random bytes and checks the decoder
// never panics and never reports a frame larger than its capacity.
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		capacity := rng.Intn(MaxBodySize) + 1
		d := NewDecoder(capacity)

		data := make([]byte, rng.Intn(1024)+1)
		rng.Read(data)

		for _, b := range data {
			if d.Feed(b) == ResultValid {
				if len(d.Frame()) > capacity {
					t.Fatalf("round %d: frame of %d bytes exceeds capacity %d", i, len(d.Frame()), capacity)
				}
				d.Release()
			}
		}
	}
}

// TestFuzzDecoder_RandomFrames round-trips random bodies, optionally preceded
// by line noise that is cleared with Expire.
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder(MaxBodySize)

		if rng.Intn(2) == 1 {
			noise := make([]byte, rng.Intn(64)+1)
			rng.Read(noise)
			for _, b := range noise {
				if d.Feed(b) == ResultValid {
					d.Release()
				}
			}
			d.Expire()
		}

		body := make([]byte, rng.Intn(MaxBodySize+1))
		rng.Read(body)

		dst := make([]byte, MaxSize)
		n, err := Encode(dst, body)
		if err != nil {
			t.Fatalf("round %d: Encode failed: %v", i, err)
		}

		if res := feed(d, dst[:n]); res != ResultValid {
			t.Fatalf("round %d: got %v for %d byte body", i, res, len(body))
		}
		if !bytes.Equal(d.Frame(), body) {
			t.Fatalf("round %d: body mismatch", i)
		}
		d.Release()
	}
}

// TestFuzzDecoder_RandomCorruption flips one random byte after the length
// prefix and expects the checksum to reject the frame.
func TestFuzzDecoder_RandomCorruption(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		body := make([]byte, rng.Intn(64)+1)
		rng.Read(body)
		wire, err := AppendFrame(nil, body)
		if err != nil {
			t.Fatalf("round %d: AppendFrame failed: %v", i, err)
		}

		pos := rng.Intn(len(wire)-1) + 1
		wire[pos] ^= byte(rng.Intn(255) + 1)

		d := NewDecoder(MaxBodySize)
		if res := feed(d, wire); res != ResultInvalid {
			t.Fatalf("round %d: flip at %d gave %v", i, pos, res)
		}
	}
}
