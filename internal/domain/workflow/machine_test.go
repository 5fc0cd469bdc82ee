package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateSubmitted, false},
		{StateProcessing, false},
		{StateApproved, true},
		{StateRejected, true},
		{StatePaid, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"draft", StateDraft, true},
		{"paid", StatePaid, true},
		{"unknown", State("archived"), false},
		{"empty", State(""), false},
		{"wrong case", State("APPROVED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigureReturnsSameConfig(t *testing.T) {
	builder := NewBuilder()

	config := builder.Configure(StateDraft)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}
	if config != builder.Configure(StateDraft) {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_PanicsOnInvalidStates(t *testing.T) {
	cases := map[string]func(){
		"configure": func() { NewBuilder().Configure(State("bogus")) },
		"build":     func() { NewBuilder().Build(State("bogus")) },
		"permit":    func() { NewBuilder().Configure(StateDraft).Permit(TriggerSubmit, State("bogus")) },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("%s should panic on invalid state", name)
				}
			}()
			fn()
		})
	}
}

func TestStateMachine_FirePermitted(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	machine := builder.Build(StateDraft)
	if !machine.CanFire(TriggerSubmit) {
		t.Error("CanFire() should return true for permitted trigger")
	}
	if err := machine.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateSubmitted {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateSubmitted)
	}
}

func TestStateMachine_PermitReplacesTarget(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		Permit(TriggerStartProcessing, StateSubmitted).
		Permit(TriggerStartProcessing, StateProcessing)

	machine := builder.Build(StateSubmitted)
	if err := machine.Fire(context.Background(), TriggerStartProcessing); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateProcessing {
		t.Errorf("State = %v, want %v", machine.State(), StateProcessing)
	}
	if n := len(builder.Build(StateSubmitted).PermittedTriggers()); n != 1 {
		t.Errorf("PermittedTriggers() returned %d triggers, want 1", n)
	}
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	tests := []struct {
		name    string
		initial State
		trigger Trigger
	}{
		{"unconfigured trigger", StateDraft, TriggerApprove},
		{"unconfigured state", StateRejected, TriggerApprove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := builder.Build(tt.initial)
			if machine.CanFire(tt.trigger) {
				t.Errorf("CanFire(%s) = true, want false", tt.trigger)
			}
			err := machine.Fire(context.Background(), tt.trigger)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
			}
			if machine.State() != tt.initial {
				t.Errorf("State = %v, want unchanged %v", machine.State(), tt.initial)
			}
		})
	}
}

func TestStateMachine_PermittedTriggersKeepRegistrationOrder(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		Permit(TriggerStartProcessing, StateProcessing).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	got := builder.Build(StateSubmitted).PermittedTriggers()
	want := []Trigger{TriggerStartProcessing, TriggerApprove, TriggerReject}
	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if n := len(builder.Build(StatePaid).PermittedTriggers()); n != 0 {
		t.Errorf("PermittedTriggers() on unconfigured state returned %d triggers, want 0", n)
	}
}

func TestStateMachine_BuildSnapshotsConfiguration(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	m1 := builder.Build(StateDraft)
	m2 := builder.Build(StateDraft)

	builder.Configure(StateDraft).Permit(TriggerReject, StateRejected)

	if m1.CanFire(TriggerReject) {
		t.Error("machine built earlier should not see later configuration")
	}
	if err := m1.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m2.State() != StateDraft {
		t.Errorf("m2 state = %v, want %v (machines should be independent)", m2.State(), StateDraft)
	}
}
