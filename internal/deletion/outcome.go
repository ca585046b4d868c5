package deletion

// SideEffect names a best-effort action taken after a lifecycle transition.
type SideEffect string

// Side effects.
const (
	EffectScheduleJob    SideEffect = "schedule_job"
	EffectCancelJob      SideEffect = "cancel_job"
	EffectRequestedEmail SideEffect = "deletion_requested_email"
	EffectCancelledEmail SideEffect = "deletion_cancelled_email"
)

// SideEffectOutcome records how one side effect went. A failed outcome is
// logged and counted, never returned as the operation's error.
type SideEffectOutcome struct {
	Effect SideEffect
	OK     bool
	// Reason explains a failure or a skip.
	Reason string
}

func succeeded(effect SideEffect) SideEffectOutcome {
	return SideEffectOutcome{Effect: effect, OK: true}
}

func failed(effect SideEffect, reason string) SideEffectOutcome {
	return SideEffectOutcome{Effect: effect, Reason: reason}
}

func (o SideEffectOutcome) result() string {
	if o.OK {
		return "ok"
	}
	return "failed"
}

// Outcome returns the outcome for effect, if it was attempted.
func Outcome(outcomes []SideEffectOutcome, effect SideEffect) (SideEffectOutcome, bool) {
	for _, o := range outcomes {
		if o.Effect == effect {
			return o, true
		}
	}
	return SideEffectOutcome{}, false
}
