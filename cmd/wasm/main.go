//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/pkg/models"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorNoPeaks
	ErrorHashGeneration
)

// generateFingerprint(samples, sampleRate, channels) fingerprints PCM audio
// in the browser with the same parameters the server indexes with. Samples
// are floats in [-1, 1] (Web Audio) and interleaved when channels is 2.
// Returns: {error: number, data: [{hash, anchorTime}] | string}
func generateFingerprint(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float32Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	// the pipeline works on the 16-bit integer scale
	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float() * 32767
	}

	if channels == 2 {
		samples = stereoToMono(samples)
	}

	res := fingerprint.Generate(models.SampleBuffer{Samples: samples, SampleRate: sampleRate}, fingerprint.DefaultParams())
	if len(res.Peaks) == 0 {
		return makeErrorResponse(ErrorNoPeaks, "No peaks found in audio (audio may be silent or too short)")
	}
	if len(res.Fingerprints) == 0 {
		return makeErrorResponse(ErrorHashGeneration, "No fingerprint hashes generated")
	}

	hashArray := js.Global().Get("Array").New(len(res.Fingerprints))
	for i, fp := range res.Fingerprints {
		hashObj := js.Global().Get("Object").New()
		hashObj.Set("hash", uint32(fp.Hash))
		hashObj.Set("anchorTime", fp.AnchorTime)
		hashArray.SetIndex(i, hashObj)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", hashArray)
	return result
}

func stereoToMono(stereo []float64) []float64 {
	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))
	logf("log", "generateFingerprint registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "window object is undefined, wasmReady not dispatched")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	logf("log", "soundz WASM module ready")
	select {}
}
