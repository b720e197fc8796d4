// Package session implements the active, post-connection phase of an RDP
// session: fast-path and slow-path update decoding into a framebuffer,
// input event encoding, virtual channel dispatch, and the
// deactivate-all/shutdown sub-sequences, all as pure step functions over
// the bytes a host reads and writes, in the same step-driven shape
// connector uses.
package session

// Rect is an inclusive-exclusive pixel region: [Left,Right) x [Top,Bottom).
type Rect struct {
	Left, Top, Right, Bottom int
}

// Union returns the smallest Rect covering both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	out := r
	if o.Left < out.Left {
		out.Left = o.Left
	}
	if o.Top < out.Top {
		out.Top = o.Top
	}
	if o.Right > out.Right {
		out.Right = o.Right
	}
	if o.Bottom > out.Bottom {
		out.Bottom = o.Bottom
	}
	return out
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// PointerPositionEvent is a server-driven cursor move.
type PointerPositionEvent struct {
	X, Y int
}

// DecodedPointer is a cached cursor shape decoded from a color/new
// pointer update: XorMask/AndMask are already composited into
// straight-alpha RGBA, row-major, top-down.
type DecodedPointer struct {
	CacheIndex int
	Width      int
	Height     int
	HotspotX   int
	HotspotY   int
	RGBA       []byte
}

// TerminateReason explains why a session ended.
type TerminateReason struct {
	// UserRequested is true for the client-initiated graceful_shutdown
	// sequence; false for a server-driven disconnect.
	UserRequested bool
	// Description is the human-readable cause: the server error info
	// string for server-driven terminations, empty otherwise.
	Description string
}

// ActiveStageOutput is one effect of a Process call. Exactly one field
// is meaningful per instance except where noted; the host checks fields
// in whatever order it likes since each is independently actionable.
type ActiveStageOutput struct {
	// ResponseFrame must be written to the wire as-is, unmodified.
	ResponseFrame []byte

	// GraphicsUpdate is the region of the framebuffer Image that
	// changed.
	GraphicsUpdate *Rect

	// PointerPosition is a server-driven cursor move.
	PointerPosition *PointerPositionEvent

	// PointerBitmap is a new cursor image, possibly cached by
	// CacheIndex.
	PointerBitmap *DecodedPointer

	// PointerDefault requests the host show its platform default cursor.
	PointerDefault bool

	// PointerHidden requests the host hide the cursor entirely.
	PointerHidden bool

	// Terminate reports the session ended; the host should stop
	// calling Process and tear down its transport.
	Terminate *TerminateReason

	// DeactivateAll is the re-activation sub-sequence the host must
	// drive to completion (HandleDemandActive/FinalizationRequest/
	// HandleFinalizationResponse) before calling ResumeReactivation and
	// resuming Process calls.
	DeactivateAll *ActivationSequence
}

func responseFrame(b []byte) ActiveStageOutput { return ActiveStageOutput{ResponseFrame: b} }

func graphicsUpdate(r Rect) ActiveStageOutput { return ActiveStageOutput{GraphicsUpdate: &r} }
