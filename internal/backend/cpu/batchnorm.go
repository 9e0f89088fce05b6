package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/vae/internal/tensor"
)

func nchw(name string, x *tensor.RawTensor) (n, c, hw int) {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %v", name, shape))
	}
	return shape[0], shape[1], shape[2] * shape[3]
}

// ChannelMoments returns the per-channel mean and biased variance of an
// [N, C, H, W] tensor, each with shape [C].
func (cpu *CPUBackend) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	requireFloat32("channel_moments", x)
	n, c, hw := nchw("channel_moments", x)

	mean = cpu.alloc("channel_moments", tensor.Shape{c})
	variance = cpu.alloc("channel_moments", tensor.Shape{c})
	data, m, v := x.AsFloat32(), mean.AsFloat32(), variance.AsFloat32()
	count := float32(n * hw)

	for ch := 0; ch < c; ch++ {
		var sum float32
		for b := 0; b < n; b++ {
			for _, val := range data[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				sum += val
			}
		}
		mu := sum / count

		var sq float32
		for b := 0; b < n; b++ {
			for _, val := range data[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				d := val - mu
				sq += d * d
			}
		}
		m[ch] = mu
		v[ch] = sq / count
	}
	return mean, variance
}

// BatchNorm2D normalizes x with the given per-channel statistics:
// y = gamma * (x - mean) / sqrt(variance + eps) + beta.
func (cpu *CPUBackend) BatchNorm2D(x, gamma, beta, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	requireFloat32("batch_norm2d", x, gamma, beta, mean, variance)
	n, c, hw := nchw("batch_norm2d", x)
	checkChannels("batch_norm2d", c, gamma, beta, mean, variance)

	result := cpu.alloc("batch_norm2d", x.Shape())
	in, out := x.AsFloat32(), result.AsFloat32()
	g, bt, m, v := gamma.AsFloat32(), beta.AsFloat32(), mean.AsFloat32(), variance.AsFloat32()

	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			scale := g[ch] / math32.Sqrt(v[ch]+eps)
			shift := bt[ch] - m[ch]*scale
			base := (b*c + ch) * hw
			for i := base; i < base+hw; i++ {
				out[i] = in[i]*scale + shift
			}
		}
	}
	return result
}

// BatchNorm2DBackward returns gradients for x, gamma and beta.
//
// With batchStats the statistics were computed from x itself (training),
// so dx includes the paths through mean and variance:
//
//	dx = gamma * invstd / M * (M*dy - sum(dy) - xhat*sum(dy*xhat))
//
// Otherwise the statistics are constants and dx = dy * gamma * invstd.
func (cpu *CPUBackend) BatchNorm2DBackward(
	x, gamma, mean, variance, grad *tensor.RawTensor,
	eps float32,
	batchStats bool,
) (dx, dgamma, dbeta *tensor.RawTensor) {
	requireFloat32("batch_norm2d_backward", x, gamma, mean, variance, grad)
	n, c, hw := nchw("batch_norm2d_backward", x)
	checkChannels("batch_norm2d_backward", c, gamma, mean, variance)
	checkGradShape("batch_norm2d_backward", grad, x.Shape())

	dx = cpu.alloc("batch_norm2d_backward", x.Shape())
	dgamma = cpu.alloc("batch_norm2d_backward", tensor.Shape{c})
	dbeta = cpu.alloc("batch_norm2d_backward", tensor.Shape{c})

	in, dy, out := x.AsFloat32(), grad.AsFloat32(), dx.AsFloat32()
	g, m, v := gamma.AsFloat32(), mean.AsFloat32(), variance.AsFloat32()
	dg, db := dgamma.AsFloat32(), dbeta.AsFloat32()
	count := float32(n * hw)

	for ch := 0; ch < c; ch++ {
		invstd := 1 / math32.Sqrt(v[ch]+eps)

		var sumDy, sumDyXhat float32
		for b := 0; b < n; b++ {
			base := (b*c + ch) * hw
			for i := base; i < base+hw; i++ {
				xhat := (in[i] - m[ch]) * invstd
				sumDy += dy[i]
				sumDyXhat += dy[i] * xhat
			}
		}
		dg[ch] = sumDyXhat
		db[ch] = sumDy

		k := g[ch] * invstd
		for b := 0; b < n; b++ {
			base := (b*c + ch) * hw
			for i := base; i < base+hw; i++ {
				if !batchStats {
					out[i] = dy[i] * k
					continue
				}
				xhat := (in[i] - m[ch]) * invstd
				out[i] = k / count * (count*dy[i] - sumDy - xhat*sumDyXhat)
			}
		}
	}
	return dx, dgamma, dbeta
}

func checkChannels(name string, c int, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if len(t.Shape()) != 1 || t.Shape()[0] != c {
			panic(fmt.Sprintf("%s: per-channel tensor shape %v, expected [%d]", name, t.Shape(), c))
		}
	}
}
