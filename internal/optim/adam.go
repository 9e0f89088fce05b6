package optim

import (
	"fmt"
	"math"
	"strconv"

	"github.com/chewxy/math32"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Moment buffers are indexed by parameter position, so a model rebuilt
// with the same architecture can load a saved state.
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      []*tensor.RawTensor // first moment per parameter
	v      []*tensor.RawTensor // second moment per parameter
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero config fields take the
// defaults LR 0.001, betas (0.9, 0.999) and eps 1e-8.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	a := &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make([]*tensor.RawTensor, len(params)),
		v:      make([]*tensor.RawTensor, len(params)),
	}
	for i, p := range params {
		a.m[i] = tensor.Zeros[float32](p.Tensor().Shape(), backend).Raw()
		a.v[i] = tensor.Zeros[float32](p.Tensor().Shape(), backend).Raw()
	}
	return a
}

// Step performs a single optimization step. Parameters with no gradient
// are skipped.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		if !grad.Shape().Equal(param.Tensor().Shape()) {
			panic(fmt.Sprintf("adam: gradient shape %v for parameter %s of shape %v",
				grad.Shape(), param.Name(), param.Tensor().Shape()))
		}
		a.update(param.Raw().AsFloat32(), grad.AsFloat32(), a.m[i].AsFloat32(), a.v[i].AsFloat32(),
			biasCorrection1, biasCorrection2)
	}
}

func (a *Adam[B]) update(param, grad, m, v []float32, biasCorrection1, biasCorrection2 float32) {
	for i, g := range grad {
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g

		mHat := m[i] / biasCorrection1
		vHat := v[i] / biasCorrection2
		param[i] -= a.lr * mHat / (math32.Sqrt(vHat) + a.eps)
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// Name returns "Adam".
func (a *Adam[B]) Name() string {
	return "Adam"
}

// Config returns the hyperparameters as recorded in checkpoints.
func (a *Adam[B]) Config() map[string]any {
	return map[string]any{
		"lr":    a.lr,
		"betas": []float32{a.beta1, a.beta2},
		"eps":   a.eps,
	}
}

// StateDict returns the step count under "step" and the moments under
// "m.<i>" and "v.<i>", where i is the parameter position.
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	step, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float64, tensor.CPU)
	if err != nil {
		panic(err)
	}
	step.AsFloat64()[0] = float64(a.t)

	state := map[string]*tensor.RawTensor{"step": step}
	for i := range a.params {
		state["m."+strconv.Itoa(i)] = a.m[i]
		state["v."+strconv.Itoa(i)] = a.v[i]
	}
	return state
}

// LoadStateDict restores the step count and moment buffers.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	step, ok := stateDict["step"]
	if !ok || step.DType() != tensor.Float64 || step.NumElements() != 1 {
		return fmt.Errorf("%w: adam state has no valid step", errs.ErrFormat)
	}

	for i, p := range a.params {
		for _, buf := range []struct {
			name string
			dst  *tensor.RawTensor
		}{
			{"m." + strconv.Itoa(i), a.m[i]},
			{"v." + strconv.Itoa(i), a.v[i]},
		} {
			src, ok := stateDict[buf.name]
			if !ok {
				return fmt.Errorf("%w: adam state missing %s", errs.ErrFormat, buf.name)
			}
			if !src.Shape().Equal(buf.dst.Shape()) || src.DType() != tensor.Float32 {
				return fmt.Errorf("%w: adam %s is %v %s, parameter %s is %v",
					errs.ErrShapeMismatch, buf.name, src.Shape(), src.DType(), p.Name(), buf.dst.Shape())
			}
			copy(buf.dst.AsFloat32(), src.AsFloat32())
		}
	}
	a.t = int(step.AsFloat64()[0])
	return nil
}
