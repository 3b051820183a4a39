// Package spectral converts between the packed real-FFT coefficient
// layout produced by the STFT framer and the (freq_bins, 1, 2) layout
// the recurrent denoising model expects. Both directions are pure,
// stateless functions so they can be unit-tested as round-trip
// bijections independently of the FFT and the inference session.
package spectral

// ToModel converts packed (length n, the packed real-FFT layout: DC and
// Nyquist folded as real values into packed[0] and packed[1]) into
// model (length n+2, explicit real/imaginary pairs with the Nyquist bin
// restored to its natural position at index n).
func ToModel(packed, model []float64) {
	n := len(packed)
	half := n / 2

	model[0] = packed[0]
	model[1] = 0
	for k := 1; k < half; k++ {
		model[2*k] = packed[2*k]
		model[2*k+1] = packed[2*k+1]
	}
	model[n] = packed[1]
	model[n+1] = 0
}

// ToPacked is the inverse of ToModel: it converts model (length n+2)
// back into packed (length n), stashing the Nyquist bin back into
// packed[1].
func ToPacked(model, packed []float64) {
	n := len(packed)
	half := n / 2

	packed[0] = model[0]
	packed[1] = model[n]
	for k := 1; k < half; k++ {
		packed[2*k] = model[2*k]
		packed[2*k+1] = model[2*k+1]
	}
}
