package ovweb

// Assembler implements the fragmentation-assembly invariant: the
// allowed frame-kind sequence is
//
//	ε | TEXT|BINARY | (TEXT|BINARY)·CONT*·CONT_FIN
//
// Control frames (PING/PONG/CLOSE) may interleave at any point and never
// participate in fragmentation (RFC 6455 §5.4).
type Assembler struct {
	inProgress    bool
	kind          Opcode // OpText or OpBinary of the fragment sequence in progress
	payload       []byte
	fragmentCount int
	maxFragments  int
}

// NewAssembler creates an Assembler, optionally bounding the number of
// fragments a single message may contain; a per-host/uri maximum
// fragment count aborts oversized sequences instead of growing
// payload unbounded.
func NewAssembler(maxFragments int) *Assembler {
	return &Assembler{maxFragments: maxFragments}
}

// AssembledMessage is one fully reassembled data message.
type AssembledMessage struct {
	Opcode  Opcode
	Payload []byte
}

// Feed advances the assembler with one parsed data frame (opcode
// TEXT/BINARY/CONTINUATION only — callers must route control frames
// elsewhere). Returns (msg, true, nil) when a complete message is ready,
// (nil, false, nil) if more fragments are needed, or a *ProtocolError on
// an invalid sequence.
func (a *Assembler) Feed(f *Frame) (*AssembledMessage, bool, error) {
	switch f.Opcode {
	case OpText, OpBinary:
		if a.inProgress {
			return nil, false, CloseProtocolViolation
		}
		if f.Fin {
			return &AssembledMessage{Opcode: f.Opcode, Payload: f.Payload}, true, nil
		}
		a.inProgress = true
		a.kind = f.Opcode
		a.payload = append([]byte(nil), f.Payload...)
		a.fragmentCount = 1
		return nil, false, nil

	case OpContinuation:
		if !a.inProgress {
			return nil, false, CloseProtocolViolation
		}
		a.fragmentCount++
		if a.maxFragments > 0 && a.fragmentCount > a.maxFragments {
			a.reset()
			return nil, false, CloseProtocolViolation
		}
		a.payload = append(a.payload, f.Payload...)

		if !f.Fin {
			return nil, false, nil
		}

		msg := &AssembledMessage{Opcode: a.kind, Payload: a.payload}
		a.reset()
		return msg, true, nil

	default:
		return nil, false, CloseProtocolViolation
	}
}

func (a *Assembler) reset() {
	a.inProgress = false
	a.kind = 0
	a.payload = nil
	a.fragmentCount = 0
}
