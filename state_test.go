package dashboard

import "testing"

func TestState_String(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateLoading, "loading"},
		{StateHealthy, "healthy"},
		{StateDegraded, "degraded"},
		{StateEmpty, "empty"},
		{State(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestAdapterState_String(t *testing.T) {
	cases := []struct {
		state AdapterState
		want  string
	}{
		{AdapterIdle, "idle"},
		{AdapterStarting, "starting"},
		{AdapterActive, "active"},
		{AdapterDegraded, "degraded"},
		{AdapterStopped, "stopped"},
		{AdapterState(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("AdapterState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
