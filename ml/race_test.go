//go:build race

package ml

// Workers share Params without locks, so concurrent training is expected to trip the detector.
const raceEnabled = true
