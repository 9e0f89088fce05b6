package tensor

// Backend defines the operations a compute backend provides.
//
// Every method returns a newly allocated tensor (Reshape may share the
// input buffer under a new header). Shape violations panic: they are
// programming errors, not runtime conditions.
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar and element-wise math.
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Clamp(x *RawTensor, lo, hi float32) *RawTensor

	// Activations.
	ReLU(x *RawTensor) *RawTensor
	LeakyReLU(x *RawTensor, slope float32) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Convolutions. Kernels are [C_out, C_in, K, K] for Conv2D and
	// [C_in, C_out, K, K] for ConvTranspose2D.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	ConvTranspose2D(input, kernel *RawTensor, stride, padding, outputPadding int) *RawTensor

	// Batch normalization over [N, C, H, W] with per-channel statistics.
	ChannelMoments(x *RawTensor) (mean, variance *RawTensor)
	BatchNorm2D(x, gamma, beta, mean, variance *RawTensor, eps float32) *RawTensor
	BatchNorm2DBackward(x, gamma, mean, variance, grad *RawTensor, eps float32, batchStats bool) (dx, dgamma, dbeta *RawTensor)

	// BinaryCrossEntropy returns the summed BCE between predictions in
	// [0, 1] and targets as a scalar.
	BinaryCrossEntropy(pred, target *RawTensor) *RawTensor
	BinaryCrossEntropyBackward(pred, target, grad *RawTensor) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
