package protocol

import (
	"encoding/json"
	"testing"

	"github.com/Iron-Ham/teamwork/internal/errors"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "dev", "dev", false},
		{"keeps allowed punctuation", "dev_1.a-b", "dev_1.a-b", false},
		{"spaces become dash", "my team", "my-team", false},
		{"run collapses", "a / b", "a-b", false},
		{"trims dashes and dots", "..-x-..", "x", false},
		{"path traversal", "../etc/passwd", "etc-passwd", false},
		{"unicode", "équipe", "quipe", false},
		{"empty", "", "", true},
		{"only symbols", "!!!", "", true},
		{"only dots", "...", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SanitizeName(%q) = %q, want error", tt.input, got)
				}
				if errors.CodeOf(err) != errors.CodeInvalidParam {
					t.Errorf("CodeOf() = %v, want INVALID_PARAM", errors.CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeName(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequireText(t *testing.T) {
	if err := RequireText("summary", "ping"); err != nil {
		t.Errorf("RequireText() error = %v", err)
	}
	for _, v := range []string{"", "   ", "\n\t"} {
		err := RequireText("summary", v)
		if errors.CodeOf(err) != errors.CodeInvalidParam {
			t.Errorf("RequireText(%q) code = %v, want INVALID_PARAM", v, errors.CodeOf(err))
		}
	}
}

func TestMessageStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to MessageStatus
		want     bool
	}{
		{MessagePending, MessageDelivered, true},
		{MessagePending, MessageProcessed, true},
		{MessageDelivered, MessageProcessed, true},
		{MessageDelivered, MessagePending, false},
		{MessageProcessed, MessageDelivered, false},
		{MessageProcessed, MessageProcessed, false},
		{MessagePending, "bogus", false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEnumValidity(t *testing.T) {
	if !MessageBroadcast.IsValid() || MessageType("shout").IsValid() {
		t.Error("MessageType.IsValid mismatch")
	}
	if !WorkCanceled.IsValid() || WorkStatus("done").IsValid() {
		t.Error("WorkStatus.IsValid mismatch")
	}
	if !TaskInProgress.IsValid() || TaskStatus("running").IsValid() {
		t.Error("TaskStatus.IsValid mismatch")
	}
	if !ApprovalRejected.IsValid() || ApprovalStatus("maybe").IsValid() {
		t.Error("ApprovalStatus.IsValid mismatch")
	}
	if WorkerStopped.IsLive() || !WorkerIdle.IsLive() {
		t.Error("WorkerState.IsLive mismatch")
	}
	if !MessageDirect.RequiresSummary() || MessageShutdownRequest.RequiresSummary() {
		t.Error("RequiresSummary mismatch")
	}
	if !MessagePlanApprovalResponse.RequiresRequestID() || MessageShutdownRequest.RequiresRequestID() {
		t.Error("RequiresRequestID mismatch")
	}
}

func TestSendEventType(t *testing.T) {
	tests := map[MessageType]EventType{
		MessageDirect:               EventMessageSent,
		MessageBroadcast:            EventMessageSent,
		MessageShutdownRequest:      EventShutdownRequest,
		MessageShutdownResponse:     EventShutdownResponse,
		MessagePlanApprovalResponse: EventPlanApprovalResponse,
	}
	for mt, want := range tests {
		if got := SendEventType(mt); got != want {
			t.Errorf("SendEventType(%s) = %s, want %s", mt, got, want)
		}
	}
}

func TestToolPolicy_Allows(t *testing.T) {
	tests := []struct {
		name   string
		policy ToolPolicy
		tool   string
		want   bool
	}{
		{"empty allows all", ToolPolicy{}, "fs.read", true},
		{"deny exact", ToolPolicy{Denylist: []string{"shell"}}, "shell", false},
		{"deny glob", ToolPolicy{Denylist: []string{"fs.*"}}, "fs.write", false},
		{"allowlist hit", ToolPolicy{Allowlist: []string{"fs.*"}}, "fs.read", true},
		{"allowlist miss", ToolPolicy{Allowlist: []string{"fs.*"}}, "shell", false},
		{"deny beats allow", ToolPolicy{Allowlist: []string{"*"}, Denylist: []string{"shell"}}, "shell", false},
		{"glob stops at separator", ToolPolicy{Allowlist: []string{"fs.*"}}, "fs.a.b", false},
		{"super glob crosses separator", ToolPolicy{Allowlist: []string{"fs.**"}}, "fs.a.b", true},
		{"malformed pattern literal", ToolPolicy{Denylist: []string{"[oops"}}, "[oops", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Allows(tt.tool); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestToolPolicy_Normalized(t *testing.T) {
	p := ToolPolicy{Denylist: []string{"shell"}}
	n := p.Normalized()
	if n.Allows(DelegationTool) {
		t.Error("normalized policy should deny the delegation tool")
	}
	if len(p.Denylist) != 1 {
		t.Error("Normalized must not mutate the receiver")
	}
	if again := n.Normalized(); len(again.Denylist) != len(n.Denylist) {
		t.Errorf("Normalized should be idempotent, got %v", again.Denylist)
	}
}

func TestToolPolicy_JSONRoundTrip(t *testing.T) {
	input := `{"allowlist":["fs.*"],"denylist":["shell"],"require_plan_approval":true,"max_tokens":4096,"sandbox":{"net":false}}`

	var p ToolPolicy
	if err := json.Unmarshal([]byte(input), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !p.RequiresPlanApproval() {
		t.Error("RequiresPlanApproval() = false, want true")
	}
	if len(p.Extra) != 2 {
		t.Fatalf("Extra has %d keys, want 2: %v", len(p.Extra), p.Extra)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got, want map[string]any
	_ = json.Unmarshal(out, &got)
	_ = json.Unmarshal([]byte(input), &want)
	for k := range want {
		if _, ok := got[k]; !ok {
			t.Errorf("key %q lost in round trip: %s", k, out)
		}
	}
}

func TestToolPolicy_UnsetApproval(t *testing.T) {
	var p ToolPolicy
	if err := json.Unmarshal([]byte(`{"allowlist":[]}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.RequirePlanApproval != nil {
		t.Error("RequirePlanApproval should stay nil when absent")
	}
	out, _ := json.Marshal(p)
	var m map[string]any
	_ = json.Unmarshal(out, &m)
	if _, ok := m["require_plan_approval"]; ok {
		t.Errorf("unset flag should not be written: %s", out)
	}
}

func TestNormalizeMember(t *testing.T) {
	m, err := NormalizeMember(Member{Name: " dev 1 "})
	if err != nil {
		t.Fatalf("NormalizeMember() error = %v", err)
	}
	if m.Name != "dev-1" {
		t.Errorf("Name = %q, want dev-1", m.Name)
	}
	if m.Role != RoleWorker {
		t.Errorf("Role = %q, want worker", m.Role)
	}
	if m.ToolPolicy.Allows(DelegationTool) {
		t.Error("member policy should deny delegation")
	}

	if _, err := NormalizeMember(Member{Name: "x", Role: "boss"}); errors.CodeOf(err) != errors.CodeInvalidParam {
		t.Errorf("bad role code = %v, want INVALID_PARAM", errors.CodeOf(err))
	}
}

func TestTeamHelpers(t *testing.T) {
	team := &Team{
		TeamName: "demo",
		Members: []Member{
			{Name: "lead", Role: RoleLead},
			{Name: "dev", Role: RoleWorker, ToolPolicy: ToolPolicy{Denylist: []string{"x"}}},
		},
	}
	if team.Lead() != "lead" {
		t.Errorf("Lead() = %q", team.Lead())
	}
	if !team.HasMember("dev") || team.HasMember("ghost") {
		t.Error("HasMember mismatch")
	}
	if w := team.Workers(); len(w) != 1 || w[0].Name != "dev" {
		t.Errorf("Workers() = %v", w)
	}

	clone := team.Clone()
	clone.Members[1].ToolPolicy.Denylist[0] = "changed"
	if team.Members[1].ToolPolicy.Denylist[0] != "x" {
		t.Error("Clone shares denylist storage")
	}
}

func TestTask_IsClaimable(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending free", Task{Status: TaskPending}, true},
		{"owned", Task{Status: TaskPending, Owner: "dev"}, false},
		{"blocked", Task{Status: TaskPending, BlockedBy: []string{"1"}}, false},
		{"in progress", Task{Status: TaskInProgress}, false},
		{"completed", Task{Status: TaskCompleted}, false},
	}
	for _, tt := range tests {
		if got := tt.task.IsClaimable(); got != tt.want {
			t.Errorf("%s: IsClaimable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWorkItem_BoardTaskID(t *testing.T) {
	w := WorkItem{Payload: map[string]any{PayloadBoardTaskID: "7"}}
	if w.BoardTaskID() != "7" {
		t.Errorf("BoardTaskID() = %q", w.BoardTaskID())
	}
	// JSON numbers decode as float64
	w = WorkItem{Payload: map[string]any{PayloadBoardTaskID: float64(12)}}
	if w.BoardTaskID() != "12" {
		t.Errorf("BoardTaskID() = %q", w.BoardTaskID())
	}
	if (&WorkItem{}).BoardTaskID() != "" {
		t.Error("empty payload should have no board task")
	}
}
