package panel

// DatePicker is the imperative date/time widget the panel's instant is
// reconciled against. The owner acquires it when the panel is set up,
// pushes the authoritative instant into it with SetValue whenever the
// instant changes programmatically, and must call Destroy on every exit
// path. User-driven picks arrive on Changes and are fed back through
// TimeController.PickerChanged, keeping widget and options in sync
// within one update cycle.
type DatePicker interface {
	Show()
	Hide()
	// SetValue displays the given instant (epoch milliseconds), or
	// clears the displayed value when nil.
	SetValue(*int64)
	Destroy()
	// Changes emits user-driven picks; nil means the user cleared the
	// value. The channel closes on Destroy.
	Changes() <-chan *int64
}
