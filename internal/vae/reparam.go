package vae

import (
	"math/rand"

	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// logvar is clamped to this range before exponentiation, both here and in
// the loss. Gradients pass only inside the range.
const (
	LogVarMin = -30
	LogVarMax = 20
)

// Reparameterize draws z ~ N(mu, exp(logvar)) as mu + exp(0.5*logvar)*eps
// with eps ~ N(0, 1) from rng. In Eval mode it returns mu.
func Reparameterize[B tensor.Backend](
	mu, logvar *tensor.Tensor[float32, B],
	mode nn.Mode,
	rng *rand.Rand,
) *tensor.Tensor[float32, B] {
	if mode == nn.Eval {
		return mu
	}
	std := logvar.Clamp(LogVarMin, LogVarMax).MulScalar(0.5).Exp()
	eps := tensor.Randn[float32](std.Shape(), rng, std.Backend())
	return mu.Add(eps.Mul(std))
}
