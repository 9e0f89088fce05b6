package vae

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

// LossTerms is one evaluation of the VAE loss.
type LossTerms[B tensor.Backend] struct {
	// Total is the scalar Reconstruction + beta*KL, differentiable on B.
	Total *tensor.Tensor[float32, B]

	Reconstruction float64 // summed binary cross-entropy
	KL             float64 // summed KL(q(z|x) || N(0, I))
	Clamped        int     // logvar entries outside [LogVarMin, LogVarMax]
}

// Value returns Total as a float64.
func (l LossTerms[B]) Value() float64 { return float64(l.Total.Item()) }

// Loss computes BCE(xHat, x) summed over all elements plus beta times
//
//	KL = 0.5 * sum(mu² + exp(logvar) - logvar - 1)
//
// with logvar clamped to [LogVarMin, LogVarMax]. x may be shaped
// differently from xHat if the element counts agree. A non-finite total
// is reported as errs.ErrNumericInstability.
func Loss[B tensor.Backend](x, xHat, mu, logvar *tensor.Tensor[float32, B], beta float64) (LossTerms[B], error) {
	if x.NumElements() != xHat.NumElements() {
		return LossTerms[B]{}, fmt.Errorf("%w: input %v and reconstruction %v differ in size",
			errs.ErrShapeMismatch, x.Shape(), xHat.Shape())
	}
	if !mu.Shape().Equal(logvar.Shape()) {
		return LossTerms[B]{}, fmt.Errorf("%w: mu %v and logvar %v differ in shape",
			errs.ErrShapeMismatch, mu.Shape(), logvar.Shape())
	}
	if !x.Shape().Equal(xHat.Shape()) {
		x = x.Reshape(xHat.Shape()...)
	}

	clamped := 0
	for _, v := range logvar.Data() {
		if v < LogVarMin || v > LogVarMax {
			clamped++
		}
	}
	if clamped > 0 {
		slog.Warn("logvar clamped", "entries", clamped, "min", LogVarMin, "max", LogVarMax)
	}

	backend := xHat.Backend()
	bce := tensor.New[float32](backend.BinaryCrossEntropy(xHat.Raw(), x.Raw()), backend)

	lv := logvar.Clamp(LogVarMin, LogVarMax)
	kl := mu.Mul(mu).Add(lv.Exp()).Sub(lv).AddScalar(-1).Sum().MulScalar(0.5)

	terms := LossTerms[B]{
		Total:          bce.Add(kl.MulScalar(float32(beta))),
		Reconstruction: float64(bce.Item()),
		KL:             float64(kl.Item()),
		Clamped:        clamped,
	}
	if total := terms.Value(); math.IsNaN(total) || math.IsInf(total, 0) {
		return terms, fmt.Errorf("%w: loss is %v (bce %v, kl %v)",
			errs.ErrNumericInstability, total, terms.Reconstruction, terms.KL)
	}
	return terms, nil
}
