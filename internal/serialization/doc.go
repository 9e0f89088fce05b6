// Package serialization reads and writes the .born tensor container used
// for model snapshots, training checkpoints and dumped test batches.
//
//	Layout:
//	  0x00 [4]  magic "BORN"
//	  0x04 [4]  version (uint32 LE, 2)
//	  0x08 [4]  flags (uint32 LE)
//	  0x0C [4]  reserved
//	  0x10 [8]  header size (uint64 LE)
//	  0x18 [8]  data size (uint64 LE)
//	  0x20 [32] SHA-256 of the data section
//	  0x40      JSON header
//	            zero padding to a 64-byte boundary
//	            tensor data, little-endian, in header order
//
// Tensors are written sorted by name so identical state produces
// identical bytes apart from the creation timestamp.
//
// Example:
//
//	err := serialization.WriteFile("model.born", model.StateDict(), serialization.Header{
//	    ModelType: serialization.ModelTypeVAE,
//	})
//
//	r, err := serialization.Open("model.born")
//	stateDict, err := r.ReadStateDict()
package serialization
