package tensorfold

// NeuralState is a composite snapshot of a model's live state, packed into a
// single byte buffer in a fixed order (activations, then attention weights,
// then memory cells) before being folded into a texture via Dispatch. The
// fixed order lets downstream viewers address sub-regions of the rendered
// grid by distance range without parsing a header.
type NeuralState struct {
	Activations []byte
	Attention   []byte
	Memory      []byte
}

// Pack concatenates the three sections in their fixed order.
func (ns NeuralState) Pack() []byte {
	out := make([]byte, 0, len(ns.Activations)+len(ns.Attention)+len(ns.Memory))
	out = append(out, ns.Activations...)
	out = append(out, ns.Attention...)
	out = append(out, ns.Memory...)
	return out
}

// Unpack splits a packed buffer back into sections given each section's
// original length. The caller must know the lengths used at Pack time;
// NeuralState carries no self-describing header by design (spec section 4.5
// treats the fold as stateless per call).
func Unpack(buf []byte, activationsLen, attentionLen, memoryLen int) NeuralState {
	ns := NeuralState{}
	pos := 0
	end := min(pos+activationsLen, len(buf))
	ns.Activations = buf[pos:end]
	pos = end

	end = min(pos+attentionLen, len(buf))
	ns.Attention = buf[pos:end]
	pos = end

	end = min(pos+memoryLen, len(buf))
	ns.Memory = buf[pos:end]

	return ns
}
